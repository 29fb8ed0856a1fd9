package rates

import "github.com/google/uuid"

// CreateRateRequest adds a billing rate to an account.
type CreateRateRequest struct {
	AccountID   uuid.UUID `json:"account_id"`
	Name        string    `json:"name"`
	HourlyCents int64     `json:"hourly_cents"`
	IsDefault   bool      `json:"is_default"`
}
