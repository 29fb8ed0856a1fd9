package db

import (
	"time"

	"github.com/google/uuid"
)

type BillingRate struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Name        string
	HourlyCents int64
	IsDefault   bool
	Active      bool
	CreatedAt   time.Time
}
