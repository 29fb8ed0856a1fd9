package timers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SnapshotCache holds the per-user active timer snapshot. It is a read
// accelerator and may lag or be empty; the store always wins.
type SnapshotCache interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*models.TimerSnapshot, bool, error)
	Put(ctx context.Context, snap models.TimerSnapshot) error
}

// Conflict reasons reported on SyncResult.
const (
	ConflictStatusMismatch  = "status_mismatch"
	ConflictPauseAccounting = "pause_accounting_mismatch"
	ConflictTerminalInStore = "terminal_in_store"
	ConflictNotFound        = "not_found"
)

type timerReader interface {
	GetTimer(ctx context.Context, id uuid.UUID) (*models.Timer, error)
	ListActiveTimers(ctx context.Context, ownerID uuid.UUID) ([]models.Timer, error)
}

// Reconciler rebuilds an owner's active timer view from the store and
// repairs the snapshot cache.
type Reconciler struct {
	store timerReader
	cache SnapshotCache
	clock clockwork.Clock
}

// NewReconciler creates a Reconciler
func NewReconciler(store timerReader, cache SnapshotCache, clock clockwork.Clock) *Reconciler {
	if cache == nil {
		cache = nopCache{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reconciler{store: store, cache: cache, clock: clock}
}

// Reconcile returns the store's active timers for ownerID, the conflicts
// between the store and the device's known states, and the cache entries
// that had drifted. Only a store failure is an error.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID uuid.UUID, deviceID string, known []KnownTimerState) (*SyncResult, error) {
	active, err := r.store.ListActiveTimers(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active timers: %w", err)
	}

	res := &SyncResult{
		OwnerID:    ownerID,
		DeviceID:   deviceID,
		Timers:     active,
		Conflicts:  []SyncConflict{},
		ResolvedAt: r.clock.Now().UTC(),
	}
	if res.Timers == nil {
		res.Timers = []models.Timer{}
	}

	byID := make(map[uuid.UUID]*models.Timer, len(active))
	for i := range active {
		byID[active[i].ID] = &active[i]
	}

	cached, found, err := r.cache.Get(ctx, ownerID)
	if err != nil {
		r.degrade(res, "read", err)
	} else if found {
		res.CacheDiverged = diverged(cached, byID)
	}

	for _, k := range known {
		if t, ok := byID[k.TimerID]; ok {
			if c, bad := compareKnown(k, t); bad {
				res.Conflicts = append(res.Conflicts, c)
			}
			continue
		}
		c, bad, err := r.inactiveConflict(ctx, ownerID, k)
		if err != nil {
			return nil, err
		}
		if bad {
			res.Conflicts = append(res.Conflicts, c)
		}
	}

	if err := r.cache.Put(ctx, snapshotOf(ownerID, deviceID, active, res.ResolvedAt)); err != nil {
		r.degrade(res, "write", err)
	}

	if len(res.Conflicts) > 0 || len(res.CacheDiverged) > 0 {
		log.Info().
			Str("owner_id", ownerID.String()).
			Str("device_id", deviceID).
			Int("conflicts", len(res.Conflicts)).
			Int("cache_diverged", len(res.CacheDiverged)).
			Msg("timer view reconciled")
	}
	return res, nil
}

// Publish writes a fresh snapshot after a committed mutation. Failures are
// logged; the next sync repairs the cache.
func (r *Reconciler) Publish(ctx context.Context, ownerID uuid.UUID, deviceID string) {
	active, err := r.store.ListActiveTimers(ctx, ownerID)
	if err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("snapshot not published: store read failed")
		return
	}
	if err := r.cache.Put(ctx, snapshotOf(ownerID, deviceID, active, r.clock.Now().UTC())); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("snapshot not published: cache write failed")
	}
}

func (r *Reconciler) degrade(res *SyncResult, op string, err error) {
	res.Degraded = true
	res.Warning = fmt.Errorf("%w: cache %s: %v", ErrReconciliationDegraded, op, err)
	log.Warn().Err(err).
		Str("owner_id", res.OwnerID.String()).
		Str("op", op).
		Msg("snapshot cache unavailable, serving from store")
}

// inactiveConflict explains a timer the device knows about that is not in
// the owner's active set.
func (r *Reconciler) inactiveConflict(ctx context.Context, ownerID uuid.UUID, k KnownTimerState) (SyncConflict, bool, error) {
	t, err := r.store.GetTimer(ctx, k.TimerID)
	if err != nil {
		if errors.Is(err, ErrTimerNotFound) {
			return SyncConflict{TimerID: k.TimerID, DeviceStatus: k.Status, Reason: ConflictNotFound}, true, nil
		}
		return SyncConflict{}, false, fmt.Errorf("failed to get timer %s: %w", k.TimerID, err)
	}
	if t.OwnerID != ownerID {
		return SyncConflict{TimerID: k.TimerID, DeviceStatus: k.Status, Reason: ConflictNotFound}, true, nil
	}
	if k.Status == t.Status {
		return SyncConflict{}, false, nil
	}
	reason := ConflictStatusMismatch
	if k.Status.IsActive() {
		reason = ConflictTerminalInStore
	}
	return SyncConflict{TimerID: k.TimerID, DeviceStatus: k.Status, StoreStatus: t.Status, Reason: reason}, true, nil
}

func compareKnown(k KnownTimerState, t *models.Timer) (SyncConflict, bool) {
	c := SyncConflict{TimerID: t.ID, DeviceStatus: k.Status, StoreStatus: t.Status}
	if k.Status != t.Status {
		c.Reason = ConflictStatusMismatch
		return c, true
	}
	if k.TotalPausedSeconds != t.TotalPausedSeconds || !samePausedAt(k.PausedAt, t.PausedAt) {
		c.Reason = ConflictPauseAccounting
		return c, true
	}
	return SyncConflict{}, false
}

func samePausedAt(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}

func diverged(cached *models.TimerSnapshot, byID map[uuid.UUID]*models.Timer) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(cached.Timers))
	var out []uuid.UUID
	for _, e := range cached.Timers {
		seen[e.TimerID] = true
		if t, ok := byID[e.TimerID]; !ok || t.Status != e.Status {
			out = append(out, e.TimerID)
		}
	}
	for id := range byID {
		if !seen[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func snapshotOf(ownerID uuid.UUID, deviceID string, active []models.Timer, at time.Time) models.TimerSnapshot {
	snap := models.TimerSnapshot{
		OwnerID:    ownerID,
		Timers:     make([]models.TimerSnapshotEntry, 0, len(active)),
		DeviceID:   deviceID,
		ResolvedAt: at,
	}
	for _, t := range active {
		snap.Timers = append(snap.Timers, models.TimerSnapshotEntry{
			TimerID:   t.ID,
			Status:    t.Status,
			UpdatedAt: t.UpdatedAt,
		})
	}
	return snap
}

type nopCache struct{}

func (nopCache) Get(context.Context, uuid.UUID) (*models.TimerSnapshot, bool, error) {
	return nil, false, nil
}

func (nopCache) Put(context.Context, models.TimerSnapshot) error { return nil }
