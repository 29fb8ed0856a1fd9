package timers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/mcdev12/servicedesk/go/internal/sqlutil"
	"github.com/mcdev12/servicedesk/go/internal/timers/db"
)

const activeTicketIndex = "timers_one_active_per_ticket"

// MutateFunc applies a state change to a row-locked timer.
type MutateFunc func(t *models.Timer) error

// ConvertFunc moves a row-locked timer to its terminal status and returns the
// time entry to insert for it.
type ConvertFunc func(t *models.Timer) (*models.TimeEntry, error)

// Conversion is the outcome of ConvertTimer.
type Conversion struct {
	Timer *models.Timer
	// Entry is nil when the timer was linked to an externally created entry.
	Entry    *models.TimeEntry
	Replayed bool
}

// PostgresRepository stores timers and time entries in Postgres. Every
// mutation locks the row with SELECT ... FOR UPDATE and writes through a
// status-guarded UPDATE inside one transaction.
type PostgresRepository struct {
	db      *sql.DB
	queries *db.Queries
}

// NewPostgresRepository creates a new timers repository
func NewPostgresRepository(database *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      database,
		queries: db.New(database),
	}
}

func (r *PostgresRepository) inTx(tx *sql.Tx) *db.Queries {
	return r.queries.WithTx(tx)
}

// CreateTimer inserts a running timer. The partial unique index on
// (owner_id, ticket_id) decides concurrent starts.
func (r *PostgresRepository) CreateTimer(ctx context.Context, nt NewTimer) (*models.Timer, error) {
	meta, err := sqlutil.ToNullRawMessage(nt.Metadata)
	if err != nil {
		return nil, err
	}

	row, err := r.queries.CreateTimer(ctx, db.CreateTimerParams{
		ID:            nt.ID,
		OwnerID:       nt.OwnerID,
		TicketID:      sqlutil.ToNullUUID(nt.TicketID),
		AccountID:     nt.AccountID,
		BillingRateID: sqlutil.ToNullUUID(nt.BillingRateID),
		Description:   nt.Description,
		StartedAt:     nt.StartedAt,
		DeviceOrigin:  nt.DeviceID,
		Metadata:      meta,
	})
	if err != nil {
		if nt.TicketID != nil && r.isActiveTicketViolation(err) {
			return nil, r.duplicateError(ctx, nt.OwnerID, *nt.TicketID)
		}
		return nil, fmt.Errorf("failed to create timer: %w", err)
	}

	return dbTimerToModel(row)
}

// GetTimer retrieves a timer by ID
func (r *PostgresRepository) GetTimer(ctx context.Context, id uuid.UUID) (*models.Timer, error) {
	row, err := r.queries.GetTimer(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTimerNotFound
		}
		return nil, fmt.Errorf("failed to get timer: %w", err)
	}
	return dbTimerToModel(row)
}

// ListActiveTimers returns the owner's running and paused timers.
func (r *PostgresRepository) ListActiveTimers(ctx context.Context, ownerID uuid.UUID) ([]models.Timer, error) {
	rows, err := r.queries.ListActiveTimersByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active timers: %w", err)
	}
	return dbTimersToModels(rows)
}

// ListTimers pages through an owner's timers, newest first.
func (r *PostgresRepository) ListTimers(ctx context.Context, f ListTimersFilter) ([]models.Timer, error) {
	statuses := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		statuses[i] = string(s)
	}
	rows, err := r.queries.ListTimersByOwner(ctx, db.ListTimersByOwnerParams{
		OwnerID:  f.OwnerID,
		Statuses: statuses,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	return dbTimersToModels(rows)
}

// MutateTimer locks the timer, applies fn and persists the result.
func (r *PostgresRepository) MutateTimer(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.Timer, error) {
	t, err := sqlutil.RunValue(ctx, r.db, r.inTx, func(q *db.Queries) (*models.Timer, error) {
		t, from, err := lockTimer(ctx, q, id)
		if err != nil {
			return nil, err
		}
		if err := fn(t); err != nil {
			return nil, err
		}
		return saveTimer(ctx, q, t, from)
	})
	if err != nil {
		var dup *DuplicateActiveTimerError
		if errors.As(err, &dup) {
			return nil, r.duplicateError(ctx, dup.OwnerID, dup.TicketID)
		}
		return nil, err
	}
	return t, nil
}

// ConvertTimer locks the timer and, unless it is already linked to an entry,
// inserts the entry built by fn and links it back in the same transaction.
func (r *PostgresRepository) ConvertTimer(ctx context.Context, id uuid.UUID, fn ConvertFunc) (*Conversion, error) {
	return sqlutil.RunValue(ctx, r.db, r.inTx, func(q *db.Queries) (*Conversion, error) {
		t, from, err := lockTimer(ctx, q, id)
		if err != nil {
			return nil, err
		}

		if t.LinkedTimeEntryID != nil {
			entry, err := q.GetTimeEntry(ctx, *t.LinkedTimeEntryID)
			if errors.Is(err, sql.ErrNoRows) {
				return &Conversion{Timer: t, Replayed: true}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load linked time entry: %w", err)
			}
			return &Conversion{Timer: t, Entry: dbTimeEntryToModel(entry), Replayed: true}, nil
		}

		entry, err := fn(t)
		if err != nil {
			return nil, err
		}

		row, err := q.CreateTimeEntry(ctx, db.CreateTimeEntryParams{
			ID:              entry.ID,
			TimerID:         entry.TimerID,
			OwnerID:         entry.OwnerID,
			TicketID:        sqlutil.ToNullUUID(entry.TicketID),
			AccountID:       entry.AccountID,
			BillingRateID:   sqlutil.ToNullUUID(entry.BillingRateID),
			Description:     entry.Description,
			Notes:           sqlutil.ToSqlString(entry.Notes),
			DurationSeconds: entry.DurationSeconds,
			RawSeconds:      entry.RawSeconds,
			Billable:        entry.Billable,
			RateAtTime:      entry.RateAtTime,
			BilledAmount:    entry.BilledAmount,
			RoundingMinutes: int32(entry.RoundingMinutes),
			ManualOverride:  entry.ManualOverride,
			StartedAt:       entry.StartedAt,
			EndedAt:         entry.EndedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to insert time entry: %w", err)
		}

		saved, err := saveTimer(ctx, q, t, from)
		if err != nil {
			return nil, err
		}
		return &Conversion{Timer: saved, Entry: dbTimeEntryToModel(row)}, nil
	})
}

// AnnotateTimer changes metadata only. It is the one write allowed on a
// terminal timer.
func (r *PostgresRepository) AnnotateTimer(ctx context.Context, id uuid.UUID, fn func(m *models.TimerMetadata)) (*models.Timer, error) {
	return sqlutil.RunValue(ctx, r.db, r.inTx, func(q *db.Queries) (*models.Timer, error) {
		t, _, err := lockTimer(ctx, q, id)
		if err != nil {
			return nil, err
		}
		fn(&t.Metadata)
		meta, err := sqlutil.ToNullRawMessage(t.Metadata)
		if err != nil {
			return nil, err
		}
		if err := q.UpdateTimerMetadata(ctx, db.UpdateTimerMetadataParams{ID: id, Metadata: meta}); err != nil {
			return nil, fmt.Errorf("failed to annotate timer: %w", err)
		}
		return t, nil
	})
}

func (r *PostgresRepository) isActiveTicketViolation(err error) bool {
	constraint, ok := sqlutil.UniqueViolation(err)
	return ok && (constraint == "" || constraint == activeTicketIndex)
}

// duplicateError looks up the timer that won the per-ticket race. It runs
// outside the failed transaction, so the winner may already have finished;
// the conflicting id is then left empty.
func (r *PostgresRepository) duplicateError(ctx context.Context, ownerID, ticketID uuid.UUID) error {
	dup := &DuplicateActiveTimerError{OwnerID: ownerID, TicketID: ticketID}
	row, err := r.queries.GetActiveTimerForTicket(ctx, db.GetActiveTimerForTicketParams{
		OwnerID:  ownerID,
		TicketID: ticketID,
	})
	if err == nil {
		dup.ConflictingTimerID = row.ID
	}
	return dup
}

func lockTimer(ctx context.Context, q *db.Queries, id uuid.UUID) (*models.Timer, models.TimerStatus, error) {
	row, err := q.GetTimerForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrTimerNotFound
		}
		return nil, "", fmt.Errorf("failed to lock timer: %w", err)
	}
	t, err := dbTimerToModel(row)
	if err != nil {
		return nil, "", err
	}
	return t, t.Status, nil
}

func saveTimer(ctx context.Context, q *db.Queries, t *models.Timer, from models.TimerStatus) (*models.Timer, error) {
	meta, err := sqlutil.ToNullRawMessage(t.Metadata)
	if err != nil {
		return nil, err
	}
	row, err := q.UpdateTimer(ctx, db.UpdateTimerParams{
		ID:                 t.ID,
		ExpectedStatus:     string(from),
		TicketID:           sqlutil.ToNullUUID(t.TicketID),
		BillingRateID:      sqlutil.ToNullUUID(t.BillingRateID),
		Description:        t.Description,
		Status:             string(t.Status),
		StartedAt:          t.StartedAt,
		PausedAt:           sqlutil.ToSqlTime(t.PausedAt),
		StoppedAt:          sqlutil.ToSqlTime(t.StoppedAt),
		TotalPausedSeconds: t.TotalPausedSeconds,
		DeviceOrigin:       t.DeviceOrigin,
		LinkedTimeEntryID:  sqlutil.ToNullUUID(t.LinkedTimeEntryID),
		Metadata:           meta,
		UpdatedAt:          t.UpdatedAt,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &InvalidTransitionError{TimerID: t.ID, From: from, Command: CommandUpdate}
		}
		if t.TicketID != nil {
			if constraint, ok := sqlutil.UniqueViolation(err); ok && (constraint == "" || constraint == activeTicketIndex) {
				return nil, &DuplicateActiveTimerError{OwnerID: t.OwnerID, TicketID: *t.TicketID}
			}
		}
		return nil, fmt.Errorf("failed to update timer: %w", err)
	}
	return dbTimerToModel(row)
}

// dbTimerToModel converts a database timer to domain model
func dbTimerToModel(row db.Timer) (*models.Timer, error) {
	t := &models.Timer{
		ID:                 row.ID,
		OwnerID:            row.OwnerID,
		TicketID:           sqlutil.FromNullUUID(row.TicketID),
		AccountID:          row.AccountID,
		BillingRateID:      sqlutil.FromNullUUID(row.BillingRateID),
		Description:        row.Description,
		Status:             models.TimerStatus(row.Status),
		StartedAt:          row.StartedAt,
		PausedAt:           sqlutil.FromSqlTime(row.PausedAt),
		StoppedAt:          sqlutil.FromSqlTime(row.StoppedAt),
		TotalPausedSeconds: row.TotalPausedSeconds,
		DeviceOrigin:       row.DeviceOrigin,
		LinkedTimeEntryID:  sqlutil.FromNullUUID(row.LinkedTimeEntryID),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if err := sqlutil.FromNullRawMessage(row.Metadata, &t.Metadata); err != nil {
		return nil, fmt.Errorf("timer %s metadata: %w", row.ID, err)
	}
	return t, nil
}

func dbTimersToModels(rows []db.Timer) ([]models.Timer, error) {
	out := make([]models.Timer, 0, len(rows))
	for _, row := range rows {
		t, err := dbTimerToModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func dbTimeEntryToModel(row db.TimeEntry) *models.TimeEntry {
	return &models.TimeEntry{
		ID:              row.ID,
		TimerID:         row.TimerID,
		OwnerID:         row.OwnerID,
		TicketID:        sqlutil.FromNullUUID(row.TicketID),
		AccountID:       row.AccountID,
		BillingRateID:   sqlutil.FromNullUUID(row.BillingRateID),
		Description:     row.Description,
		Notes:           sqlutil.FromSqlString(row.Notes, ""),
		DurationSeconds: row.DurationSeconds,
		RawSeconds:      row.RawSeconds,
		Billable:        row.Billable,
		RateAtTime:      row.RateAtTime,
		BilledAmount:    row.BilledAmount,
		RoundingMinutes: int(row.RoundingMinutes),
		ManualOverride:  row.ManualOverride,
		StartedAt:       row.StartedAt,
		EndedAt:         row.EndedAt,
		CreatedAt:       row.CreatedAt,
	}
}
