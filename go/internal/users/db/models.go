package db

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Username  string
	Email     string
	Role      string
	CreatedAt time.Time
}
