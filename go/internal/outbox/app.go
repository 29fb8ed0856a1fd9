package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/mcdev12/servicedesk/go/internal/outbox/worker"
	"github.com/rs/zerolog/log"
)

// OutboxRepository defines what the app layer needs from the repository
type OutboxRepository interface {
	InsertOutboxEvent(ctx context.Context, event worker.OutboxEvent) error
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]worker.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*worker.OutboxEvent, error)
	CountUnsent(ctx context.Context) (int64, error)
}

// App handles outbox business logic. It is the timers event sink: each
// committed timer mutation becomes one outbox row, which the relay publishes.
type App struct {
	repo OutboxRepository
}

// NewApp creates a new outbox App
func NewApp(repo OutboxRepository) *App {
	return &App{
		repo: repo,
	}
}

// Emit records a timer event. Failures are logged and dropped; the timer
// mutation has already committed and clients recover through sync.
func (a *App) Emit(ctx context.Context, event models.TimerEvent) {
	if err := a.InsertTimerEvent(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("timer_id", event.TimerID.String()).
			Str("event_type", string(event.Type)).
			Msg("timer event dropped")
	}
}

// InsertTimerEvent inserts a timer event into the outbox
func (a *App) InsertTimerEvent(ctx context.Context, event models.TimerEvent) error {
	if event.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if event.OwnerID == uuid.Nil {
		return fmt.Errorf("event owner cannot be empty")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Type, err)
	}

	row := worker.OutboxEvent{
		ID:        uuid.New(),
		OwnerID:   event.OwnerID,
		TimerID:   event.TimerID,
		EventType: string(event.Type),
		Payload:   payload,
	}
	if err := a.repo.InsertOutboxEvent(ctx, row); err != nil {
		return fmt.Errorf("failed to insert %s event: %w", event.Type, err)
	}

	log.Debug().
		Str("event_id", row.ID.String()).
		Str("timer_id", event.TimerID.String()).
		Str("event_type", row.EventType).
		Msg("outbox event inserted")

	return nil
}

// FetchUnsentEvents fetches unsent outbox events
func (a *App) FetchUnsentEvents(ctx context.Context, limit int32) ([]worker.OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	events, err := a.repo.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent events: %w", err)
	}

	if len(events) > 0 {
		log.Debug().
			Int("count", len(events)).
			Msg("fetched unsent outbox events")
	}

	return events, nil
}

// MarkEventSent marks an outbox event as sent
func (a *App) MarkEventSent(ctx context.Context, eventID uuid.UUID) error {
	if err := a.repo.MarkOutboxSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}

	log.Debug().
		Str("event_id", eventID.String()).
		Msg("marked outbox event as sent")

	return nil
}

// GetEventByID fetches a specific unsent outbox event by ID
func (a *App) GetEventByID(ctx context.Context, eventID uuid.UUID) (*worker.OutboxEvent, error) {
	event, err := a.repo.FetchOutboxByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event by ID: %w", err)
	}

	return event, nil
}

// PendingCount returns the number of events not yet published
func (a *App) PendingCount(ctx context.Context) (int64, error) {
	return a.repo.CountUnsent(ctx)
}
