package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TimerOutbox struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	TimerID   uuid.UUID
	EventType string
	Payload   json.RawMessage
	CreatedAt time.Time
	SentAt    sql.NullTime
}
