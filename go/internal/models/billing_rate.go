package models

import (
	"time"

	"github.com/google/uuid"
)

// BillingRate is an hourly rate an account bills time at.
type BillingRate struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"account_id"`
	Name        string    `json:"name"`
	HourlyCents int64     `json:"hourly_cents"`
	IsDefault   bool      `json:"is_default"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// AmountFor returns the billed amount in cents for the given number of seconds,
// rounded half up to the nearest cent.
func (r BillingRate) AmountFor(seconds int64) int64 {
	if seconds <= 0 || r.HourlyCents <= 0 {
		return 0
	}
	return (r.HourlyCents*seconds + 1800) / 3600
}
