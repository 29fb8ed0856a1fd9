package db

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

const insertTimerOutbox = `-- name: InsertTimerOutbox :exec
INSERT INTO timer_outbox (id, owner_id, timer_id, event_type, payload)
VALUES ($1, $2, $3, $4, $5)
`

type InsertTimerOutboxParams struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	TimerID   uuid.UUID
	EventType string
	Payload   json.RawMessage
}

func (q *Queries) InsertTimerOutbox(ctx context.Context, arg InsertTimerOutboxParams) error {
	_, err := q.db.ExecContext(ctx, insertTimerOutbox,
		arg.ID,
		arg.OwnerID,
		arg.TimerID,
		arg.EventType,
		arg.Payload,
	)
	return err
}

const fetchUnsentTimerOutbox = `-- name: FetchUnsentTimerOutbox :many
SELECT id, owner_id, timer_id, event_type, payload, created_at, sent_at
FROM timer_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1
`

func (q *Queries) FetchUnsentTimerOutbox(ctx context.Context, limit int32) ([]TimerOutbox, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentTimerOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TimerOutbox
	for rows.Next() {
		var i TimerOutbox
		if err := rows.Scan(
			&i.ID,
			&i.OwnerID,
			&i.TimerID,
			&i.EventType,
			&i.Payload,
			&i.CreatedAt,
			&i.SentAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const fetchTimerOutboxByID = `-- name: FetchTimerOutboxByID :one
SELECT id, owner_id, timer_id, event_type, payload, created_at, sent_at
FROM timer_outbox
WHERE id = $1 AND sent_at IS NULL
`

func (q *Queries) FetchTimerOutboxByID(ctx context.Context, id uuid.UUID) (TimerOutbox, error) {
	row := q.db.QueryRowContext(ctx, fetchTimerOutboxByID, id)
	var i TimerOutbox
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.TimerID,
		&i.EventType,
		&i.Payload,
		&i.CreatedAt,
		&i.SentAt,
	)
	return i, err
}

const markTimerOutboxSent = `-- name: MarkTimerOutboxSent :exec
UPDATE timer_outbox SET sent_at = NOW() WHERE id = $1 AND sent_at IS NULL
`

func (q *Queries) MarkTimerOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markTimerOutboxSent, id)
	return err
}

const countUnsentTimerOutbox = `-- name: CountUnsentTimerOutbox :one
SELECT COUNT(*) FROM timer_outbox WHERE sent_at IS NULL
`

func (q *Queries) CountUnsentTimerOutbox(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countUnsentTimerOutbox)
	var count int64
	err := row.Scan(&count)
	return count, err
}
