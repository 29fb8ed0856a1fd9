package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const timerColumns = `id, owner_id, ticket_id, account_id, billing_rate_id, description, status,
    started_at, paused_at, stopped_at, total_paused_seconds, device_origin,
    linked_time_entry_id, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTimer(row rowScanner) (Timer, error) {
	var i Timer
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.TicketID,
		&i.AccountID,
		&i.BillingRateID,
		&i.Description,
		&i.Status,
		&i.StartedAt,
		&i.PausedAt,
		&i.StoppedAt,
		&i.TotalPausedSeconds,
		&i.DeviceOrigin,
		&i.LinkedTimeEntryID,
		&i.Metadata,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanTimers(rows *sql.Rows) ([]Timer, error) {
	defer rows.Close()
	var items []Timer
	for rows.Next() {
		i, err := scanTimer(rows)
		if err != nil {
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

const createTimer = `-- name: CreateTimer :one
INSERT INTO timers (
    id, owner_id, ticket_id, account_id, billing_rate_id, description, status,
    started_at, total_paused_seconds, device_origin, metadata, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, 'running', $7, 0, $8, $9, $7, $7
)
RETURNING ` + timerColumns

type CreateTimerParams struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	TicketID      uuid.NullUUID
	AccountID     uuid.UUID
	BillingRateID uuid.NullUUID
	Description   string
	StartedAt     time.Time
	DeviceOrigin  string
	Metadata      pqtype.NullRawMessage
}

func (q *Queries) CreateTimer(ctx context.Context, arg CreateTimerParams) (Timer, error) {
	row := q.db.QueryRowContext(ctx, createTimer,
		arg.ID,
		arg.OwnerID,
		arg.TicketID,
		arg.AccountID,
		arg.BillingRateID,
		arg.Description,
		arg.StartedAt,
		arg.DeviceOrigin,
		arg.Metadata,
	)
	return scanTimer(row)
}

const getTimer = `-- name: GetTimer :one
SELECT ` + timerColumns + ` FROM timers WHERE id = $1`

func (q *Queries) GetTimer(ctx context.Context, id uuid.UUID) (Timer, error) {
	return scanTimer(q.db.QueryRowContext(ctx, getTimer, id))
}

const getTimerForUpdate = `-- name: GetTimerForUpdate :one
SELECT ` + timerColumns + ` FROM timers WHERE id = $1 FOR UPDATE`

// GetTimerForUpdate row-locks the timer until the surrounding transaction ends.
func (q *Queries) GetTimerForUpdate(ctx context.Context, id uuid.UUID) (Timer, error) {
	return scanTimer(q.db.QueryRowContext(ctx, getTimerForUpdate, id))
}

const getActiveTimerForTicket = `-- name: GetActiveTimerForTicket :one
SELECT ` + timerColumns + ` FROM timers
WHERE owner_id = $1 AND ticket_id = $2 AND status IN ('running', 'paused')
LIMIT 1`

type GetActiveTimerForTicketParams struct {
	OwnerID  uuid.UUID
	TicketID uuid.UUID
}

func (q *Queries) GetActiveTimerForTicket(ctx context.Context, arg GetActiveTimerForTicketParams) (Timer, error) {
	return scanTimer(q.db.QueryRowContext(ctx, getActiveTimerForTicket, arg.OwnerID, arg.TicketID))
}

const listActiveTimersByOwner = `-- name: ListActiveTimersByOwner :many
SELECT ` + timerColumns + ` FROM timers
WHERE owner_id = $1 AND status IN ('running', 'paused')
ORDER BY started_at ASC, id ASC`

func (q *Queries) ListActiveTimersByOwner(ctx context.Context, ownerID uuid.UUID) ([]Timer, error) {
	rows, err := q.db.QueryContext(ctx, listActiveTimersByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	return scanTimers(rows)
}

const listTimersByOwner = `-- name: ListTimersByOwner :many
SELECT ` + timerColumns + ` FROM timers
WHERE owner_id = $1
  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
ORDER BY started_at DESC, id DESC
LIMIT $3 OFFSET $4`

type ListTimersByOwnerParams struct {
	OwnerID  uuid.UUID
	Statuses []string
	Limit    int32
	Offset   int32
}

func (q *Queries) ListTimersByOwner(ctx context.Context, arg ListTimersByOwnerParams) ([]Timer, error) {
	rows, err := q.db.QueryContext(ctx, listTimersByOwner,
		arg.OwnerID,
		pq.Array(arg.Statuses),
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return scanTimers(rows)
}

const updateTimer = `-- name: UpdateTimer :one
UPDATE timers SET
    ticket_id = $3,
    billing_rate_id = $4,
    description = $5,
    status = $6,
    started_at = $7,
    paused_at = $8,
    stopped_at = $9,
    total_paused_seconds = $10,
    device_origin = $11,
    linked_time_entry_id = $12,
    metadata = $13,
    updated_at = $14
WHERE id = $1 AND status = $2
RETURNING ` + timerColumns

type UpdateTimerParams struct {
	ID                 uuid.UUID
	ExpectedStatus     string
	TicketID           uuid.NullUUID
	BillingRateID      uuid.NullUUID
	Description        string
	Status             string
	StartedAt          time.Time
	PausedAt           sql.NullTime
	StoppedAt          sql.NullTime
	TotalPausedSeconds int64
	DeviceOrigin       string
	LinkedTimeEntryID  uuid.NullUUID
	Metadata           pqtype.NullRawMessage
	UpdatedAt          time.Time
}

// UpdateTimer only matches while the row still holds ExpectedStatus, so a lost
// race surfaces as sql.ErrNoRows.
func (q *Queries) UpdateTimer(ctx context.Context, arg UpdateTimerParams) (Timer, error) {
	row := q.db.QueryRowContext(ctx, updateTimer,
		arg.ID,
		arg.ExpectedStatus,
		arg.TicketID,
		arg.BillingRateID,
		arg.Description,
		arg.Status,
		arg.StartedAt,
		arg.PausedAt,
		arg.StoppedAt,
		arg.TotalPausedSeconds,
		arg.DeviceOrigin,
		arg.LinkedTimeEntryID,
		arg.Metadata,
		arg.UpdatedAt,
	)
	return scanTimer(row)
}

const updateTimerMetadata = `-- name: UpdateTimerMetadata :exec
UPDATE timers SET metadata = $2 WHERE id = $1`

type UpdateTimerMetadataParams struct {
	ID       uuid.UUID
	Metadata pqtype.NullRawMessage
}

func (q *Queries) UpdateTimerMetadata(ctx context.Context, arg UpdateTimerMetadataParams) error {
	_, err := q.db.ExecContext(ctx, updateTimerMetadata, arg.ID, arg.Metadata)
	return err
}
