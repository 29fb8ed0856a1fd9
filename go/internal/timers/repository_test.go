package timers

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mcdev12/servicedesk/go/internal/migrations"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// openTestDB connects to the database named by DATABASE_URL and migrates it.
// The Postgres tests are skipped when it is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := migrations.Run(dsn, "up"); err != nil {
		t.Fatalf("migrations.Run() error = %v", err)
	}
	database, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

type pgFixture struct {
	repo    *PostgresRepository
	owner   uuid.UUID
	account uuid.UUID
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	database := openTestDB(t)
	f := &pgFixture{repo: NewPostgresRepository(database), owner: uuid.New(), account: uuid.New()}
	_, err := database.ExecContext(context.Background(),
		`INSERT INTO users (id, account_id, username, email) VALUES ($1, $2, $3, $4)`,
		f.owner, f.account, "tech-"+f.owner.String(), f.owner.String()+"@example.com")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return f
}

func (f *pgFixture) create(t *testing.T, ticket *uuid.UUID) *models.Timer {
	t.Helper()
	tm, err := f.repo.CreateTimer(context.Background(), f.newTimer(ticket))
	if err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}
	return tm
}

func (f *pgFixture) newTimer(ticket *uuid.UUID) NewTimer {
	return NewTimer{
		ID:          uuid.New(),
		OwnerID:     f.owner,
		TicketID:    ticket,
		AccountID:   f.account,
		Description: "printer on 3rd floor",
		DeviceID:    "laptop",
		StartedAt:   time.Now().UTC().Add(-time.Hour),
		Metadata: models.TimerMetadata{
			OriginDevice: "laptop",
			LastDevice:   "laptop",
			Annotations:  map[string]string{"queue": "hardware"},
		},
	}
}

func TestPostgresRepository_CreateRoundTripsMetadata(t *testing.T) {
	f := newPGFixture(t)
	created := f.create(t, newTicket())

	got, err := f.repo.GetTimer(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetTimer() error = %v", err)
	}
	want := models.TimerMetadata{
		OriginDevice: "laptop",
		LastDevice:   "laptop",
		Annotations:  map[string]string{"queue": "hardware"},
	}
	if diff := cmp.Diff(want, got.Metadata); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
	if got.Status != models.TimerStatusRunning || got.DeviceOrigin != "laptop" {
		t.Errorf("timer = %+v", got)
	}
}

func TestPostgresRepository_ConcurrentCreateOnTicket(t *testing.T) {
	f := newPGFixture(t)
	ticket := newTicket()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*models.Timer
		dups    []*DuplicateActiveTimerError
		others  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm, err := f.repo.CreateTimer(context.Background(), f.newTimer(ticket))
			mu.Lock()
			defer mu.Unlock()
			var dup *DuplicateActiveTimerError
			switch {
			case err == nil:
				winners = append(winners, tm)
			case errors.As(err, &dup):
				dups = append(dups, dup)
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 || len(dups) != n-1 || len(others) != 0 {
		t.Fatalf("winners = %d dups = %d others = %v, want 1/%d/none", len(winners), len(dups), others, n-1)
	}
	for _, dup := range dups {
		if dup.ConflictingTimerID != winners[0].ID {
			t.Errorf("ConflictingTimerID = %s, want %s", dup.ConflictingTimerID, winners[0].ID)
		}
	}

	// A terminal timer frees the ticket.
	_, err := f.repo.MutateTimer(context.Background(), winners[0].ID, func(tm *models.Timer) error {
		return Finish(tm, models.TimerStatusCanceled, CommandCancel, time.Now().UTC())
	})
	if err != nil {
		t.Fatalf("MutateTimer(cancel) error = %v", err)
	}
	f.create(t, ticket)
}

func TestPostgresRepository_ConcurrentResumeAppliesOnce(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	tm := f.create(t, nil)

	pausedAt := time.Now().UTC().Add(-10 * time.Minute)
	if _, err := f.repo.MutateTimer(ctx, tm.ID, func(t *models.Timer) error { return Pause(t, pausedAt) }); err != nil {
		t.Fatalf("MutateTimer(pause) error = %v", err)
	}

	const n = 6
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.repo.MutateTimer(ctx, tm.ID, func(t *models.Timer) error { return Resume(t, now) })
			var inv *InvalidTransitionError
			if err != nil && !errors.As(err, &inv) {
				t.Errorf("MutateTimer(resume) error = %v", err)
			}
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 1 {
		t.Errorf("successful resumes = %d, want 1", ok)
	}
	got, err := f.repo.GetTimer(ctx, tm.ID)
	if err != nil {
		t.Fatalf("GetTimer() error = %v", err)
	}
	if got.PausedAt != nil || got.TotalPausedSeconds < 590 || got.TotalPausedSeconds > 610 {
		t.Errorf("paused_at = %v total_paused = %d, want nil and ~600", got.PausedAt, got.TotalPausedSeconds)
	}
}

func TestPostgresRepository_MutateTimerTicketCollision(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	ticketA, ticketB := newTicket(), newTicket()
	onA := f.create(t, ticketA)
	onB := f.create(t, ticketB)

	_, err := f.repo.MutateTimer(ctx, onB.ID, func(t *models.Timer) error {
		t.TicketID = ticketA
		return nil
	})
	var dup *DuplicateActiveTimerError
	if !errors.As(err, &dup) {
		t.Fatalf("MutateTimer() error = %v, want DuplicateActiveTimerError", err)
	}
	if dup.ConflictingTimerID != onA.ID {
		t.Errorf("ConflictingTimerID = %s, want %s", dup.ConflictingTimerID, onA.ID)
	}

	got, err := f.repo.GetTimer(ctx, onB.ID)
	if err != nil {
		t.Fatalf("GetTimer() error = %v", err)
	}
	if got.TicketID == nil || *got.TicketID != *ticketB {
		t.Errorf("TicketID = %v, want unchanged %s", got.TicketID, ticketB)
	}
}

func TestPostgresRepository_ConvertTimerReplays(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	tm := f.create(t, newTicket())
	now := time.Now().UTC()

	convert := func(t *models.Timer) (*models.TimeEntry, error) {
		if err := Finish(t, models.TimerStatusCommitted, CommandCommit, now); err != nil {
			return nil, err
		}
		entry := &models.TimeEntry{
			ID:              uuid.New(),
			TimerID:         t.ID,
			OwnerID:         t.OwnerID,
			TicketID:        t.TicketID,
			AccountID:       t.AccountID,
			Description:     t.Description,
			DurationSeconds: 3600,
			RawSeconds:      3600,
			RoundingMinutes: 15,
			StartedAt:       t.StartedAt,
			EndedAt:         now,
		}
		t.LinkedTimeEntryID = &entry.ID
		return entry, nil
	}

	first, err := f.repo.ConvertTimer(ctx, tm.ID, convert)
	if err != nil {
		t.Fatalf("ConvertTimer() error = %v", err)
	}
	if first.Replayed || first.Entry == nil {
		t.Fatalf("first conversion = %+v", first)
	}
	if first.Timer.Status != models.TimerStatusCommitted || first.Timer.LinkedTimeEntryID == nil ||
		*first.Timer.LinkedTimeEntryID != first.Entry.ID {
		t.Errorf("timer after conversion = %+v", first.Timer)
	}

	second, err := f.repo.ConvertTimer(ctx, tm.ID, func(*models.Timer) (*models.TimeEntry, error) {
		t.Error("convert callback ran for an already linked timer")
		return nil, errors.New("unexpected")
	})
	if err != nil {
		t.Fatalf("retried ConvertTimer() error = %v", err)
	}
	if !second.Replayed || second.Entry == nil || second.Entry.ID != first.Entry.ID {
		t.Errorf("retry = %+v, want replay of entry %s", second, first.Entry.ID)
	}
	if second.Entry.DurationSeconds != 3600 {
		t.Errorf("DurationSeconds = %d, want 3600", second.Entry.DurationSeconds)
	}
}
