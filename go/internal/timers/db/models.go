package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Timer struct {
	ID                 uuid.UUID
	OwnerID            uuid.UUID
	TicketID           uuid.NullUUID
	AccountID          uuid.UUID
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
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type TimeEntry struct {
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
	CreatedAt       time.Time
}
