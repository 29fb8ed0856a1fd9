package timers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// memRepo mirrors the store: one lock per call plays the row lock, and the
// per-ticket uniqueness is checked under it.
type memRepo struct {
	mu      sync.Mutex
	timers  map[uuid.UUID]*models.Timer
	entries map[uuid.UUID]*models.TimeEntry

	listErr  error
	entryErr error

	// converting is true while a ConvertTimer callback runs.
	converting bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		timers:  make(map[uuid.UUID]*models.Timer),
		entries: make(map[uuid.UUID]*models.TimeEntry),
	}
}

func (r *memRepo) CreateTimer(_ context.Context, nt NewTimer) (*models.Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if nt.TicketID != nil {
		if w := r.activeOn(nt.OwnerID, *nt.TicketID, uuid.Nil); w != nil {
			return nil, &DuplicateActiveTimerError{OwnerID: nt.OwnerID, TicketID: *nt.TicketID, ConflictingTimerID: w.ID}
		}
	}
	t := &models.Timer{
		ID:            nt.ID,
		OwnerID:       nt.OwnerID,
		TicketID:      nt.TicketID,
		AccountID:     nt.AccountID,
		BillingRateID: nt.BillingRateID,
		Description:   nt.Description,
		Status:        models.TimerStatusRunning,
		StartedAt:     nt.StartedAt,
		DeviceOrigin:  nt.DeviceID,
		Metadata:      nt.Metadata,
		CreatedAt:     nt.StartedAt,
		UpdatedAt:     nt.StartedAt,
	}
	r.timers[t.ID] = cloneTimer(t)
	return t, nil
}

func (r *memRepo) GetTimer(_ context.Context, id uuid.UUID) (*models.Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[id]
	if !ok {
		return nil, ErrTimerNotFound
	}
	return cloneTimer(t), nil
}

func (r *memRepo) ListActiveTimers(_ context.Context, ownerID uuid.UUID) ([]models.Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []models.Timer
	for _, t := range r.timers {
		if t.OwnerID == ownerID && t.Status.IsActive() {
			out = append(out, *cloneTimer(t))
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *memRepo) ListTimers(_ context.Context, f ListTimersFilter) ([]models.Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[models.TimerStatus]bool, len(f.Statuses))
	for _, s := range f.Statuses {
		want[s] = true
	}
	var out []models.Timer
	for _, t := range r.timers {
		if t.OwnerID != f.OwnerID || (len(want) > 0 && !want[t.Status]) {
			continue
		}
		out = append(out, *cloneTimer(t))
	}
	sortByStart(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if int(f.Offset) >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if int(f.Limit) < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memRepo) MutateTimer(_ context.Context, id uuid.UUID, fn MutateFunc) (*models.Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.timers[id]
	if !ok {
		return nil, ErrTimerNotFound
	}
	t := cloneTimer(cur)
	if err := fn(t); err != nil {
		return nil, err
	}
	if t.Status.IsActive() && t.TicketID != nil {
		if w := r.activeOn(t.OwnerID, *t.TicketID, t.ID); w != nil {
			return nil, &DuplicateActiveTimerError{OwnerID: t.OwnerID, TicketID: *t.TicketID, ConflictingTimerID: w.ID}
		}
	}
	r.timers[id] = cloneTimer(t)
	return t, nil
}

func (r *memRepo) ConvertTimer(_ context.Context, id uuid.UUID, fn ConvertFunc) (*Conversion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.timers[id]
	if !ok {
		return nil, ErrTimerNotFound
	}
	t := cloneTimer(cur)
	if t.LinkedTimeEntryID != nil {
		e, ok := r.entries[*t.LinkedTimeEntryID]
		if !ok {
			return &Conversion{Timer: t, Replayed: true}, nil
		}
		entry := *e
		return &Conversion{Timer: t, Entry: &entry, Replayed: true}, nil
	}

	r.converting = true
	entry, err := fn(t)
	r.converting = false
	if err != nil {
		return nil, err
	}
	if r.entryErr != nil {
		return nil, r.entryErr
	}
	entry.CreatedAt = entry.EndedAt
	stored := *entry
	r.entries[entry.ID] = &stored
	r.timers[id] = cloneTimer(t)
	return &Conversion{Timer: t, Entry: entry}, nil
}

func (r *memRepo) AnnotateTimer(_ context.Context, id uuid.UUID, fn func(m *models.TimerMetadata)) (*models.Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.timers[id]
	if !ok {
		return nil, ErrTimerNotFound
	}
	t := cloneTimer(cur)
	fn(&t.Metadata)
	r.timers[id] = cloneTimer(t)
	return t, nil
}

func (r *memRepo) entryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *memRepo) activeOn(ownerID, ticketID, except uuid.UUID) *models.Timer {
	for _, t := range r.timers {
		if t.ID != except && t.OwnerID == ownerID && t.TicketID != nil &&
			*t.TicketID == ticketID && t.Status.IsActive() {
			return t
		}
	}
	return nil
}

func sortByStart(ts []models.Timer) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].StartedAt.Equal(ts[j].StartedAt) {
			return ts[i].ID.String() < ts[j].ID.String()
		}
		return ts[i].StartedAt.Before(ts[j].StartedAt)
	})
}

func cloneTimer(t *models.Timer) *models.Timer {
	c := *t
	c.TicketID = cloneID(t.TicketID)
	c.BillingRateID = cloneID(t.BillingRateID)
	c.LinkedTimeEntryID = cloneID(t.LinkedTimeEntryID)
	c.PausedAt = cloneTime(t.PausedAt)
	c.StoppedAt = cloneTime(t.StoppedAt)
	c.Metadata.ActedBy = cloneID(t.Metadata.ActedBy)
	c.Metadata.Adjustments = append([]models.Adjustment(nil), t.Metadata.Adjustments...)
	if t.Metadata.Annotations != nil {
		c.Metadata.Annotations = make(map[string]string, len(t.Metadata.Annotations))
		for k, v := range t.Metadata.Annotations {
			c.Metadata.Annotations[k] = v
		}
	}
	return &c
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type fakeAuthz struct {
	admins    map[uuid.UUID]bool
	delegates map[uuid.UUID]map[uuid.UUID]bool
	err       error
}

func (a *fakeAuthz) CanActFor(_ context.Context, caller models.Caller, ownerID uuid.UUID) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	return caller.UserID == ownerID || a.admins[caller.UserID] || a.delegates[caller.UserID][ownerID], nil
}

func (a *fakeAuthz) CanActOn(ctx context.Context, caller models.Caller, t *models.Timer) (bool, error) {
	return a.CanActFor(ctx, caller, t.OwnerID)
}

func (a *fakeAuthz) IsAdmin(_ context.Context, caller models.Caller) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	return a.admins[caller.UserID], nil
}

type fakeRates struct {
	byAccount map[uuid.UUID]*models.BillingRate
	err       error
	onLookup  func()
}

func (f *fakeRates) RateFor(_ context.Context, accountID uuid.UUID, _ *uuid.UUID) (*models.BillingRate, error) {
	if f.onLookup != nil {
		f.onLookup()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.byAccount[accountID], nil
}

type fakeCache struct {
	mu     sync.Mutex
	snaps  map[uuid.UUID]models.TimerSnapshot
	puts   int
	getErr error
	putErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[uuid.UUID]models.TimerSnapshot)}
}

func (c *fakeCache) Get(_ context.Context, ownerID uuid.UUID) (*models.TimerSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	s, ok := c.snaps[ownerID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *fakeCache) Put(_ context.Context, snap models.TimerSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.putErr != nil {
		return c.putErr
	}
	c.puts++
	c.snaps[snap.OwnerID] = snap
	return nil
}

func (c *fakeCache) snapshot(ownerID uuid.UUID) (models.TimerSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.snaps[ownerID]
	return s, ok
}

type fakeSink struct {
	mu     sync.Mutex
	events []models.TimerEvent
}

func (s *fakeSink) Emit(_ context.Context, e models.TimerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *fakeSink) types() []models.TimerEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TimerEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

var errBoom = errors.New("boom")
