package models

import (
	"time"

	"github.com/google/uuid"
)

// TimeEntry is the immutable billing record produced by converting a timer.
type TimeEntry struct {
	ID              uuid.UUID  `json:"id"`
	TimerID         uuid.UUID  `json:"timer_id"`
	OwnerID         uuid.UUID  `json:"owner_id"`
	TicketID        *uuid.UUID `json:"ticket_id,omitempty"`
	AccountID       uuid.UUID  `json:"account_id"`
	BillingRateID   *uuid.UUID `json:"billing_rate_id,omitempty"`
	Description     string     `json:"description"`
	Notes           string     `json:"notes,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	RawSeconds      int64      `json:"raw_seconds"`
	Billable        bool       `json:"billable"`
	RateAtTime      int64      `json:"rate_at_time"`  // cents per hour
	BilledAmount    int64      `json:"billed_amount"` // cents
	RoundingMinutes int        `json:"rounding_minutes"`
	ManualOverride  bool       `json:"manual_override"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         time.Time  `json:"ended_at"`
	CreatedAt       time.Time  `json:"created_at"`
}
