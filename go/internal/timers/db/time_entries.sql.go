package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const timeEntryColumns = `id, timer_id, owner_id, ticket_id, account_id, billing_rate_id, description,
    notes, duration_seconds, raw_seconds, billable, rate_at_time, billed_amount,
    rounding_minutes, manual_override, started_at, ended_at, created_at`

func scanTimeEntry(row rowScanner) (TimeEntry, error) {
	var i TimeEntry
	err := row.Scan(
		&i.ID,
		&i.TimerID,
		&i.OwnerID,
		&i.TicketID,
		&i.AccountID,
		&i.BillingRateID,
		&i.Description,
		&i.Notes,
		&i.DurationSeconds,
		&i.RawSeconds,
		&i.Billable,
		&i.RateAtTime,
		&i.BilledAmount,
		&i.RoundingMinutes,
		&i.ManualOverride,
		&i.StartedAt,
		&i.EndedAt,
		&i.CreatedAt,
	)
	return i, err
}

const createTimeEntry = `-- name: CreateTimeEntry :one
INSERT INTO time_entries (
    id, timer_id, owner_id, ticket_id, account_id, billing_rate_id, description,
    notes, duration_seconds, raw_seconds, billable, rate_at_time, billed_amount,
    rounding_minutes, manual_override, started_at, ended_at, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17
)
RETURNING ` + timeEntryColumns

type CreateTimeEntryParams struct {
	ID              uuid.UUID
	TimerID         uuid.UUID
	OwnerID         uuid.UUID
	TicketID        uuid.NullUUID
	AccountID       uuid.UUID
	BillingRateID   uuid.NullUUID
	Description     string
	Notes           sql.NullString
	DurationSeconds int64
	RawSeconds      int64
	Billable        bool
	RateAtTime      int64
	BilledAmount    int64
	RoundingMinutes int32
	ManualOverride  bool
	StartedAt       time.Time
	EndedAt         time.Time
}

func (q *Queries) CreateTimeEntry(ctx context.Context, arg CreateTimeEntryParams) (TimeEntry, error) {
	row := q.db.QueryRowContext(ctx, createTimeEntry,
		arg.ID,
		arg.TimerID,
		arg.OwnerID,
		arg.TicketID,
		arg.AccountID,
		arg.BillingRateID,
		arg.Description,
		arg.Notes,
		arg.DurationSeconds,
		arg.RawSeconds,
		arg.Billable,
		arg.RateAtTime,
		arg.BilledAmount,
		arg.RoundingMinutes,
		arg.ManualOverride,
		arg.StartedAt,
		arg.EndedAt,
	)
	return scanTimeEntry(row)
}

const getTimeEntry = `-- name: GetTimeEntry :one
SELECT ` + timeEntryColumns + ` FROM time_entries WHERE id = $1`

func (q *Queries) GetTimeEntry(ctx context.Context, id uuid.UUID) (TimeEntry, error) {
	return scanTimeEntry(q.db.QueryRowContext(ctx, getTimeEntry, id))
}
