package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/outbox/db"
	"github.com/mcdev12/servicedesk/go/internal/outbox/worker"
	"github.com/mcdev12/servicedesk/go/internal/sqlutil"
)

// ErrEventNotFound is returned when an event does not exist or was already sent.
var ErrEventNotFound = errors.New("outbox event not found or already sent")

type Repository struct {
	queries *db.Queries
}

func NewRepository(queries *db.Queries) *Repository {
	return &Repository{
		queries: queries,
	}
}

func (r *Repository) InsertOutboxEvent(ctx context.Context, event worker.OutboxEvent) error {
	err := r.queries.InsertTimerOutbox(ctx, db.InsertTimerOutboxParams{
		ID:        event.ID,
		OwnerID:   event.OwnerID,
		TimerID:   event.TimerID,
		EventType: event.EventType,
		Payload:   event.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", event.EventType, err)
	}
	return nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]worker.OutboxEvent, error) {
	rows, err := r.queries.FetchUnsentTimerOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	events := make([]worker.OutboxEvent, len(rows))
	for i, row := range rows {
		events[i] = rowToEvent(row)
	}
	return events, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.MarkTimerOutboxSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*worker.OutboxEvent, error) {
	row, err := r.queries.FetchTimerOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	event := rowToEvent(row)
	return &event, nil
}

func (r *Repository) CountUnsent(ctx context.Context) (int64, error) {
	count, err := r.queries.CountUnsentTimerOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return count, nil
}

func rowToEvent(row db.TimerOutbox) worker.OutboxEvent {
	return worker.OutboxEvent{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		TimerID:   row.TimerID,
		EventType: row.EventType,
		Payload:   []byte(row.Payload),
		CreatedAt: row.CreatedAt,
		SentAt:    sqlutil.FromSqlTime(row.SentAt),
	}
}
