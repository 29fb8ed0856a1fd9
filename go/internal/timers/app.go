package timers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxDescription   = 2000
)

// Repository defines what the app layer needs from the timer store
type Repository interface {
	CreateTimer(ctx context.Context, nt NewTimer) (*models.Timer, error)
	GetTimer(ctx context.Context, id uuid.UUID) (*models.Timer, error)
	ListActiveTimers(ctx context.Context, ownerID uuid.UUID) ([]models.Timer, error)
	ListTimers(ctx context.Context, f ListTimersFilter) ([]models.Timer, error)
	MutateTimer(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.Timer, error)
	ConvertTimer(ctx context.Context, id uuid.UUID, fn ConvertFunc) (*Conversion, error)
	AnnotateTimer(ctx context.Context, id uuid.UUID, fn func(m *models.TimerMetadata)) (*models.Timer, error)
}

// Authorizer answers permission questions. The timer core never decides them itself.
type Authorizer interface {
	CanActFor(ctx context.Context, caller models.Caller, ownerID uuid.UUID) (bool, error)
	CanActOn(ctx context.Context, caller models.Caller, t *models.Timer) (bool, error)
	IsAdmin(ctx context.Context, caller models.Caller) (bool, error)
}

// RateLookup resolves the billing rate for a timer. A nil rate means unbilled.
type RateLookup interface {
	RateFor(ctx context.Context, accountID uuid.UUID, rateID *uuid.UUID) (*models.BillingRate, error)
}

// EventSink receives fire-and-forget notifications after a mutation commits.
type EventSink interface {
	Emit(ctx context.Context, event models.TimerEvent)
}

// Dependencies wires the App. Cache, Events, Rates and Clock are optional.
type Dependencies struct {
	Repo       Repository
	Authorizer Authorizer
	Rates      RateLookup
	Cache      SnapshotCache
	Events     EventSink
	Clock      clockwork.Clock
	Rounding   RoundingPolicy
}

// App handles the timer lifecycle
type App struct {
	repo       Repository
	authz      Authorizer
	rates      RateLookup
	events     EventSink
	clock      clockwork.Clock
	rounding   RoundingPolicy
	reconciler *Reconciler
}

// NewApp creates a new timers App
func NewApp(deps Dependencies) *App {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Cache == nil {
		deps.Cache = nopCache{}
	}
	if deps.Events == nil {
		deps.Events = nopSink{}
	}
	return &App{
		repo:       deps.Repo,
		authz:      deps.Authorizer,
		rates:      deps.Rates,
		events:     deps.Events,
		clock:      deps.Clock,
		rounding:   deps.Rounding,
		reconciler: NewReconciler(deps.Repo, deps.Cache, deps.Clock),
	}
}

// Start creates a running timer.
func (a *App) Start(ctx context.Context, caller models.Caller, req StartTimerRequest) (*models.Timer, error) {
	if err := a.validateStartRequest(req); err != nil {
		return nil, err
	}
	if err := a.authorizeOwner(ctx, caller, req.OwnerID, "start a timer for"); err != nil {
		return nil, err
	}

	now := a.now()
	meta := models.TimerMetadata{OriginDevice: req.DeviceID, LastDevice: req.DeviceID}
	if caller.UserID != req.OwnerID {
		by := caller.UserID
		meta.ActedBy = &by
	}

	t, err := a.repo.CreateTimer(ctx, NewTimer{
		ID:            uuid.New(),
		OwnerID:       req.OwnerID,
		TicketID:      req.TicketID,
		AccountID:     req.AccountID,
		BillingRateID: req.BillingRateID,
		Description:   req.Description,
		DeviceID:      req.DeviceID,
		StartedAt:     now,
		Metadata:      meta,
	})
	if err != nil {
		var dup *DuplicateActiveTimerError
		if errors.As(err, &dup) {
			log.Info().
				Str("owner_id", req.OwnerID.String()).
				Str("conflicting_timer_id", dup.ConflictingTimerID.String()).
				Msg("rejected duplicate active timer")
			return nil, dup
		}
		return nil, fmt.Errorf("failed to start timer: %w", err)
	}

	log.Info().
		Str("timer_id", t.ID.String()).
		Str("owner_id", t.OwnerID.String()).
		Str("device_id", req.DeviceID).
		Msg("timer started")

	a.published(ctx, t, models.TimerEventStarted, req.DeviceID, nil)
	return t, nil
}

// Get returns a timer the caller may see.
func (a *App) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Timer, error) {
	return a.loadForCaller(ctx, caller, id, "view timer")
}

// Update changes description, ticket or billing rate of an active timer.
// On a terminal timer only annotations may change.
func (a *App) Update(ctx context.Context, caller models.Caller, id uuid.UUID, req UpdateTimerRequest) (*models.Timer, error) {
	if req.Description != nil && len(*req.Description) > maxDescription {
		return nil, validationError("description exceeds %d characters", maxDescription)
	}
	current, err := a.loadForCaller(ctx, caller, id, "update timer")
	if err != nil {
		return nil, err
	}

	if current.Status.IsTerminal() {
		if !req.annotationsOnly() {
			return nil, &InvalidTransitionError{TimerID: id, From: current.Status, Command: CommandUpdate}
		}
		t, err := a.repo.AnnotateTimer(ctx, id, func(m *models.TimerMetadata) {
			mergeAnnotations(m, req.Annotations)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to annotate timer: %w", err)
		}
		return t, nil
	}

	t, err := a.transition(ctx, caller, id, CommandUpdate, req.DeviceID, func(t *models.Timer, now time.Time) error {
		if !t.Status.IsActive() {
			return invalid(t, CommandUpdate)
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		switch {
		case req.ClearTicket:
			t.TicketID = nil
		case req.TicketID != nil:
			ticket := *req.TicketID
			t.TicketID = &ticket
		}
		switch {
		case req.ClearBillingRate:
			t.BillingRateID = nil
		case req.BillingRateID != nil:
			rate := *req.BillingRateID
			t.BillingRateID = &rate
		}
		mergeAnnotations(&t.Metadata, req.Annotations)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.published(ctx, t, models.TimerEventUpdated, req.DeviceID, nil)
	return t, nil
}

// Pause pauses the caller's running timer.
func (a *App) Pause(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error) {
	if _, err := a.loadForCaller(ctx, caller, id, "pause timer"); err != nil {
		return nil, err
	}
	return a.pause(ctx, caller, id, deviceID)
}

// Resume resumes the caller's paused timer.
func (a *App) Resume(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error) {
	if _, err := a.loadForCaller(ctx, caller, id, "resume timer"); err != nil {
		return nil, err
	}
	return a.resume(ctx, caller, id, deviceID)
}

// Stop ends the timer, converting it into a time entry when req.Convert is set.
func (a *App) Stop(ctx context.Context, caller models.Caller, id uuid.UUID, req StopTimerRequest) (*StopResult, error) {
	if req.Rounding != nil {
		if err := req.Rounding.Validate(); err != nil {
			return nil, err
		}
	}
	if _, err := a.loadForCaller(ctx, caller, id, "stop timer"); err != nil {
		return nil, err
	}
	return a.stop(ctx, caller, id, req)
}

// Commit always converts the timer into a time entry.
func (a *App) Commit(ctx context.Context, caller models.Caller, id uuid.UUID, req CommitTimerRequest) (*StopResult, error) {
	if req.Rounding != nil {
		if err := req.Rounding.Validate(); err != nil {
			return nil, err
		}
	}
	if req.DurationMinutes != nil && (*req.DurationMinutes < 0 || *req.DurationMinutes > MaxDurationSeconds/60) {
		return nil, validationError("duration_minutes must be between 0 and %d", MaxDurationSeconds/60)
	}
	if req.Description != nil && len(*req.Description) > maxDescription {
		return nil, validationError("description exceeds %d characters", maxDescription)
	}
	if _, err := a.loadForCaller(ctx, caller, id, "commit timer"); err != nil {
		return nil, err
	}
	return a.convert(ctx, caller, id, CommandCommit, conversion{
		rounding:        req.Rounding,
		durationMinutes: req.DurationMinutes,
		description:     req.Description,
		notes:           req.Notes,
		billable:        req.Billable,
		deviceID:        req.DeviceID,
	})
}

// Cancel ends the timer without converting it. It stays stored for audit.
func (a *App) Cancel(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error) {
	if _, err := a.loadForCaller(ctx, caller, id, "cancel timer"); err != nil {
		return nil, err
	}
	t, err := a.transition(ctx, caller, id, CommandCancel, deviceID, func(t *models.Timer, now time.Time) error {
		return Finish(t, models.TimerStatusCanceled, CommandCancel, now)
	})
	if err != nil {
		return nil, err
	}

	a.published(ctx, t, models.TimerEventCanceled, deviceID, nil)
	return t, nil
}

// AdjustDuration sets or shifts the elapsed time of an active timer.
func (a *App) AdjustDuration(ctx context.Context, caller models.Caller, id uuid.UUID, req AdjustDurationRequest) (*models.Timer, error) {
	if req.Seconds < 0 || req.Seconds > MaxDurationSeconds {
		return nil, validationError("seconds must be between 0 and %d", MaxDurationSeconds)
	}
	switch req.Mode {
	case models.AdjustModeSet, models.AdjustModeAdd, models.AdjustModeSubtract:
	default:
		return nil, validationError("mode must be set, add or subtract, got %q", req.Mode)
	}
	if _, err := a.loadForCaller(ctx, caller, id, "adjust timer"); err != nil {
		return nil, err
	}

	t, err := a.transition(ctx, caller, id, CommandAdjust, req.DeviceID, func(t *models.Timer, now time.Time) error {
		return Adjust(t, req.Mode, req.Seconds, caller.UserID, req.DeviceID, now)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("timer_id", id.String()).
		Str("mode", string(req.Mode)).
		Int64("seconds", req.Seconds).
		Msg("timer duration adjusted")

	a.published(ctx, t, models.TimerEventAdjusted, req.DeviceID, nil)
	return t, nil
}

// MarkCommitted links an active timer to a time entry created elsewhere.
// Repeating the call with the same entry returns the timer unchanged.
func (a *App) MarkCommitted(ctx context.Context, caller models.Caller, id, timeEntryID uuid.UUID, deviceID string) (*models.Timer, error) {
	if timeEntryID == uuid.Nil {
		return nil, validationError("time_entry_id is required")
	}
	current, err := a.loadForCaller(ctx, caller, id, "commit timer")
	if err != nil {
		return nil, err
	}
	if current.Status == models.TimerStatusCommitted &&
		current.LinkedTimeEntryID != nil && *current.LinkedTimeEntryID == timeEntryID {
		return current, nil
	}

	t, err := a.transition(ctx, caller, id, CommandMarkCommitted, deviceID, func(t *models.Timer, now time.Time) error {
		if err := Finish(t, models.TimerStatusCommitted, CommandMarkCommitted, now); err != nil {
			return err
		}
		entryID := timeEntryID
		t.LinkedTimeEntryID = &entryID
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.published(ctx, t, models.TimerEventCommitted, deviceID, &timeEntryID)
	return t, nil
}

// Sync reconciles a device's view of the owner's active timers with the store.
func (a *App) Sync(ctx context.Context, caller models.Caller, ownerID uuid.UUID, deviceID string, known []KnownTimerState) (*SyncResult, error) {
	if ownerID == uuid.Nil {
		return nil, validationError("owner_id is required")
	}
	if err := a.authorizeOwner(ctx, caller, ownerID, "sync timers of"); err != nil {
		return nil, err
	}

	res, err := a.reconciler.Reconcile(ctx, ownerID, deviceID, known)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile timers: %w", err)
	}

	if len(res.Conflicts) > 0 || len(res.CacheDiverged) > 0 {
		a.events.Emit(ctx, models.TimerEvent{
			Type:       models.TimerEventSynced,
			OwnerID:    ownerID,
			DeviceID:   deviceID,
			OccurredAt: res.ResolvedAt,
		})
	}
	return res, nil
}

// CurrentActive lists the owner's active timers with live totals.
func (a *App) CurrentActive(ctx context.Context, caller models.Caller, ownerID uuid.UUID) (*ActiveSummary, error) {
	if ownerID == uuid.Nil {
		return nil, validationError("owner_id is required")
	}
	if err := a.authorizeOwner(ctx, caller, ownerID, "view timers of"); err != nil {
		return nil, err
	}

	active, err := a.repo.ListActiveTimers(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active timers: %w", err)
	}

	now := a.now()
	summary := &ActiveSummary{OwnerID: ownerID, Timers: active, AsOf: now}
	if summary.Timers == nil {
		summary.Timers = []models.Timer{}
	}

	rates := make(map[string]*models.BillingRate)
	for i := range active {
		t := &active[i]
		secs := int64(Elapsed(t, now) / time.Second)
		summary.Totals.Count++
		summary.Totals.DurationSeconds += secs

		key := t.AccountID.String()
		if t.BillingRateID != nil {
			key = t.BillingRateID.String()
		}
		rate, seen := rates[key]
		if !seen {
			rate, err = a.lookupRate(ctx, t)
			if err != nil {
				log.Warn().Err(err).Str("timer_id", t.ID.String()).Msg("rate lookup failed; amount omitted")
			}
			rates[key] = rate
		}
		if rate != nil {
			summary.Totals.AmountCents += rate.AmountFor(secs)
		}
	}
	return summary, nil
}

// ListTimers pages through the owner's timer history.
func (a *App) ListTimers(ctx context.Context, caller models.Caller, f ListTimersFilter) ([]models.Timer, error) {
	if f.OwnerID == uuid.Nil {
		return nil, validationError("owner_id is required")
	}
	if f.Offset < 0 {
		return nil, validationError("offset must not be negative")
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if err := a.authorizeOwner(ctx, caller, f.OwnerID, "list timers of"); err != nil {
		return nil, err
	}

	timers, err := a.repo.ListTimers(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	return timers, nil
}

// AdminPause pauses any user's timer.
func (a *App) AdminPause(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error) {
	if err := a.authorizeAdmin(ctx, caller, "pause", id); err != nil {
		return nil, err
	}
	return a.pause(ctx, caller, id, deviceID)
}

// AdminResume resumes any user's timer.
func (a *App) AdminResume(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error) {
	if err := a.authorizeAdmin(ctx, caller, "resume", id); err != nil {
		return nil, err
	}
	return a.resume(ctx, caller, id, deviceID)
}

// AdminStop stops any user's timer.
func (a *App) AdminStop(ctx context.Context, caller models.Caller, id uuid.UUID, req StopTimerRequest) (*StopResult, error) {
	if req.Rounding != nil {
		if err := req.Rounding.Validate(); err != nil {
			return nil, err
		}
	}
	if err := a.authorizeAdmin(ctx, caller, "stop", id); err != nil {
		return nil, err
	}
	return a.stop(ctx, caller, id, req)
}

func (a *App) pause(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error) {
	t, err := a.transition(ctx, caller, id, CommandPause, deviceID, Pause)
	if err != nil {
		return nil, err
	}
	a.published(ctx, t, models.TimerEventPaused, deviceID, nil)
	return t, nil
}

func (a *App) resume(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error) {
	t, err := a.transition(ctx, caller, id, CommandResume, deviceID, Resume)
	if err != nil {
		return nil, err
	}
	a.published(ctx, t, models.TimerEventResumed, deviceID, nil)
	return t, nil
}

func (a *App) stop(ctx context.Context, caller models.Caller, id uuid.UUID, req StopTimerRequest) (*StopResult, error) {
	if req.Convert {
		return a.convert(ctx, caller, id, CommandStop, conversion{
			rounding: req.Rounding,
			notes:    req.Notes,
			deviceID: req.DeviceID,
		})
	}

	t, err := a.transition(ctx, caller, id, CommandStop, req.DeviceID, func(t *models.Timer, now time.Time) error {
		return Finish(t, models.TimerStatusStopped, CommandStop, now)
	})
	if err != nil {
		return nil, err
	}
	a.published(ctx, t, models.TimerEventStopped, req.DeviceID, nil)
	return &StopResult{Timer: t}, nil
}

type conversion struct {
	rounding        *RoundingPolicy
	durationMinutes *int64
	description     *string
	notes           string
	billable        *bool
	deviceID        string
}

// convert runs the status change, entry insert and back-link as one store
// transaction. A timer that is already linked returns its existing entry.
func (a *App) convert(ctx context.Context, caller models.Caller, id uuid.UUID, cmd Command, in conversion) (*StopResult, error) {
	policy := a.rounding
	if in.rounding != nil {
		policy = *in.rounding
	}
	rate, snapshot, err := a.resolveRate(ctx, id)
	if err != nil {
		return nil, err
	}
	now := a.now()

	conv, err := a.repo.ConvertTimer(ctx, id, func(t *models.Timer) (*models.TimeEntry, error) {
		if err := Finish(t, models.TimerStatusCommitted, cmd, now); err != nil {
			return nil, err
		}
		if t.AccountID != snapshot.AccountID || !sameID(t.BillingRateID, snapshot.BillingRateID) {
			return nil, errRateChanged
		}

		raw := int64(Elapsed(t, now) / time.Second)
		base := raw
		if in.durationMinutes != nil {
			base = *in.durationMinutes * 60
		}
		duration := policy.Apply(base)

		entry := &models.TimeEntry{
			ID:              uuid.New(),
			TimerID:         t.ID,
			OwnerID:         t.OwnerID,
			TicketID:        t.TicketID,
			AccountID:       t.AccountID,
			Description:     t.Description,
			Notes:           in.notes,
			DurationSeconds: duration,
			RawSeconds:      raw,
			RoundingMinutes: policy.IncrementMinutes,
			ManualOverride:  in.durationMinutes != nil,
			StartedAt:       t.StartedAt,
			EndedAt:         now,
		}
		if in.description != nil {
			entry.Description = *in.description
		}
		if rate != nil {
			rateID := rate.ID
			entry.BillingRateID = &rateID
			entry.RateAtTime = rate.HourlyCents
			entry.Billable = true
		}
		if in.billable != nil {
			entry.Billable = *in.billable
		}
		if entry.Billable && rate != nil {
			entry.BilledAmount = rate.AmountFor(duration)
		}

		t.LinkedTimeEntryID = &entry.ID
		a.touch(t, caller, in.deviceID, now)
		return entry, nil
	})
	if err != nil {
		var inv *InvalidTransitionError
		if errors.As(err, &inv) || errors.Is(err, ErrTimerNotFound) || errors.Is(err, ErrValidation) {
			return nil, err
		}
		log.Error().Err(err).Str("timer_id", id.String()).Str("command", string(cmd)).Msg("timer conversion rolled back")
		return nil, &ConversionFailureError{TimerID: id, Err: err}
	}

	if conv.Replayed {
		log.Info().
			Str("timer_id", id.String()).
			Str("command", string(cmd)).
			Msg("timer already converted; returning existing entry")
		return &StopResult{Timer: conv.Timer, TimeEntry: conv.Entry, Replayed: true}, nil
	}

	log.Info().
		Str("timer_id", id.String()).
		Str("time_entry_id", conv.Entry.ID.String()).
		Int64("raw_seconds", conv.Entry.RawSeconds).
		Int64("duration_seconds", conv.Entry.DurationSeconds).
		Int64("billed_amount", conv.Entry.BilledAmount).
		Msg("timer converted to time entry")

	entryID := conv.Entry.ID
	a.published(ctx, conv.Timer, models.TimerEventCommitted, in.deviceID, &entryID)
	return &StopResult{Timer: conv.Timer, TimeEntry: conv.Entry}, nil
}

// transition is the single write path for every lifecycle command, owner or admin.
func (a *App) transition(ctx context.Context, caller models.Caller, id uuid.UUID, cmd Command, deviceID string, fn func(t *models.Timer, now time.Time) error) (*models.Timer, error) {
	now := a.now()
	t, err := a.repo.MutateTimer(ctx, id, func(t *models.Timer) error {
		if err := fn(t, now); err != nil {
			return err
		}
		a.touch(t, caller, deviceID, now)
		return nil
	})
	if err != nil {
		var inv *InvalidTransitionError
		if errors.As(err, &inv) {
			if inv.Command == CommandUpdate && cmd != CommandUpdate {
				inv.Command = cmd
			}
			return nil, inv
		}
		var dup *DuplicateActiveTimerError
		if errors.As(err, &dup) || errors.Is(err, ErrTimerNotFound) || errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to %s timer: %w", cmd, err)
	}
	return t, nil
}

func (a *App) touch(t *models.Timer, caller models.Caller, deviceID string, now time.Time) {
	t.UpdatedAt = now
	if deviceID != "" {
		t.DeviceOrigin = deviceID
		t.Metadata.LastDevice = deviceID
	}
	if caller.UserID != t.OwnerID {
		by := caller.UserID
		t.Metadata.ActedBy = &by
	} else {
		t.Metadata.ActedBy = nil
	}
}

// published refreshes the owner's snapshot and emits the event. Both are
// best effort and happen only after the store commit.
func (a *App) published(ctx context.Context, t *models.Timer, eventType models.TimerEventType, deviceID string, entryID *uuid.UUID) {
	a.reconciler.Publish(ctx, t.OwnerID, deviceID)
	a.events.Emit(ctx, models.TimerEvent{
		Type:        eventType,
		TimerID:     t.ID,
		OwnerID:     t.OwnerID,
		DeviceID:    deviceID,
		TimeEntryID: entryID,
		Timer:       t,
		OccurredAt:  t.UpdatedAt,
	})
}

// resolveRate looks up the billing rate before the conversion transaction
// opens, so the transaction never waits on the pool for a second connection.
// The returned timer is what the rate was resolved against; the conversion
// re-checks it under the row lock.
func (a *App) resolveRate(ctx context.Context, id uuid.UUID) (*models.BillingRate, *models.Timer, error) {
	t, err := a.repo.GetTimer(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTimerNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to get timer: %w", err)
	}
	if !t.Status.IsActive() {
		return nil, t, nil
	}
	rate, err := a.lookupRate(ctx, t)
	if err != nil {
		log.Error().Err(err).Str("timer_id", id.String()).Msg("billing rate lookup failed")
		return nil, nil, &ConversionFailureError{TimerID: id, Err: fmt.Errorf("failed to snapshot billing rate: %w", err)}
	}
	return rate, t, nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (a *App) lookupRate(ctx context.Context, t *models.Timer) (*models.BillingRate, error) {
	if a.rates == nil {
		return nil, nil
	}
	return a.rates.RateFor(ctx, t.AccountID, t.BillingRateID)
}

func (a *App) loadForCaller(ctx context.Context, caller models.Caller, id uuid.UUID, action string) (*models.Timer, error) {
	if id == uuid.Nil {
		return nil, validationError("timer id is required")
	}
	t, err := a.repo.GetTimer(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTimerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get timer: %w", err)
	}
	ok, err := a.authz.CanActOn(ctx, caller, t)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize: %w", err)
	}
	if !ok {
		return nil, &AuthorizationError{CallerID: caller.UserID, Action: action, Target: id}
	}
	return t, nil
}

func (a *App) authorizeOwner(ctx context.Context, caller models.Caller, ownerID uuid.UUID, action string) error {
	ok, err := a.authz.CanActFor(ctx, caller, ownerID)
	if err != nil {
		return fmt.Errorf("failed to authorize: %w", err)
	}
	if !ok {
		return &AuthorizationError{CallerID: caller.UserID, Action: action, Target: ownerID}
	}
	return nil
}

func (a *App) authorizeAdmin(ctx context.Context, caller models.Caller, action string, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("timer id is required")
	}
	ok, err := a.authz.IsAdmin(ctx, caller)
	if err != nil {
		return fmt.Errorf("failed to authorize: %w", err)
	}
	if !ok {
		return &AuthorizationError{CallerID: caller.UserID, Action: "override " + action, Target: id}
	}
	return nil
}

func (a *App) now() time.Time {
	return a.clock.Now().UTC()
}

// validateStartRequest validates start timer request
func (a *App) validateStartRequest(req StartTimerRequest) error {
	if req.OwnerID == uuid.Nil {
		return validationError("owner_id is required")
	}
	if req.AccountID == uuid.Nil {
		return validationError("account_id is required")
	}
	if req.TicketID != nil && *req.TicketID == uuid.Nil {
		return validationError("ticket_id must not be the nil uuid")
	}
	if len(req.Description) > maxDescription {
		return validationError("description exceeds %d characters", maxDescription)
	}
	return nil
}

func (r UpdateTimerRequest) annotationsOnly() bool {
	return r.Description == nil && r.TicketID == nil && !r.ClearTicket &&
		r.BillingRateID == nil && !r.ClearBillingRate && len(r.Annotations) > 0
}

func mergeAnnotations(m *models.TimerMetadata, annotations map[string]string) {
	if len(annotations) == 0 {
		return
	}
	if m.Annotations == nil {
		m.Annotations = make(map[string]string, len(annotations))
	}
	for k, v := range annotations {
		m.Annotations[k] = v
	}
}

type nopSink struct{}

func (nopSink) Emit(context.Context, models.TimerEvent) {}
