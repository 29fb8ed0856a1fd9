package timers

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// StartTimerRequest is the data needed to start a timer.
type StartTimerRequest struct {
	OwnerID       uuid.UUID  `json:"owner_id"`
	TicketID      *uuid.UUID `json:"ticket_id,omitempty"`
	AccountID     uuid.UUID  `json:"account_id"`
	BillingRateID *uuid.UUID `json:"billing_rate_id,omitempty"`
	Description   string     `json:"description"`
	DeviceID      string     `json:"device_id"`
}

// UpdateTimerRequest carries the fields that may change while a timer is active.
// Nil fields are left alone; ClearTicket/ClearBillingRate unset the reference.
type UpdateTimerRequest struct {
	Description      *string           `json:"description,omitempty"`
	TicketID         *uuid.UUID        `json:"ticket_id,omitempty"`
	ClearTicket      bool              `json:"clear_ticket,omitempty"`
	BillingRateID    *uuid.UUID        `json:"billing_rate_id,omitempty"`
	ClearBillingRate bool              `json:"clear_billing_rate,omitempty"`
	Annotations      map[string]string `json:"annotations,omitempty"`
	DeviceID         string            `json:"device_id"`
}

// StopTimerRequest stops a timer, optionally converting it into a time entry.
type StopTimerRequest struct {
	Convert  bool            `json:"convert"`
	Rounding *RoundingPolicy `json:"rounding,omitempty"`
	Notes    string          `json:"notes,omitempty"`
	DeviceID string          `json:"device_id"`
}

// CommitTimerRequest commits a timer into a time entry. Description and
// DurationMinutes override the timer's own values when set.
type CommitTimerRequest struct {
	Rounding        *RoundingPolicy `json:"rounding,omitempty"`
	DurationMinutes *int64          `json:"duration_minutes,omitempty"`
	Description     *string         `json:"description,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Billable        *bool           `json:"billable,omitempty"`
	DeviceID        string          `json:"device_id"`
}

// AdjustDurationRequest manually sets or shifts the elapsed time.
type AdjustDurationRequest struct {
	Seconds  int64             `json:"seconds"`
	Mode     models.AdjustMode `json:"mode"`
	DeviceID string            `json:"device_id"`
}

// StopResult is a finished timer and, when it was converted, its entry.
type StopResult struct {
	Timer     *models.Timer     `json:"timer"`
	TimeEntry *models.TimeEntry `json:"time_entry,omitempty"`
	// Replayed is true when the timer had already been converted and the
	// existing entry was returned.
	Replayed bool `json:"replayed"`
}

// KnownTimerState is what a device last believed about one timer.
type KnownTimerState struct {
	TimerID            uuid.UUID          `json:"timer_id"`
	Status             models.TimerStatus `json:"status"`
	PausedAt           *time.Time         `json:"paused_at,omitempty"`
	TotalPausedSeconds int64              `json:"total_paused_seconds"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// SyncConflict describes a device view that disagreed with the store.
type SyncConflict struct {
	TimerID      uuid.UUID          `json:"timer_id"`
	DeviceStatus models.TimerStatus `json:"device_status"`
	// StoreStatus is empty when the timer does not exist.
	StoreStatus models.TimerStatus `json:"store_status,omitempty"`
	Reason      string             `json:"reason"`
}

// SyncResult is the authoritative active timer list for an owner.
type SyncResult struct {
	OwnerID   uuid.UUID      `json:"owner_id"`
	DeviceID  string         `json:"device_id"`
	Timers    []models.Timer `json:"timers"`
	Conflicts []SyncConflict `json:"conflicts"`
	// CacheDiverged lists timers whose cached snapshot disagreed with the store.
	CacheDiverged []uuid.UUID `json:"cache_diverged,omitempty"`
	// Degraded is set when the snapshot cache could not be used; Warning carries
	// ErrReconciliationDegraded and the cause.
	Degraded   bool      `json:"degraded"`
	Warning    error     `json:"-"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ActiveTotals summarises an owner's active timers.
type ActiveTotals struct {
	Count           int   `json:"count"`
	DurationSeconds int64 `json:"duration_seconds"`
	AmountCents     int64 `json:"amount_cents"`
}

// ActiveSummary is the response of CurrentActive.
type ActiveSummary struct {
	OwnerID uuid.UUID      `json:"owner_id"`
	Timers  []models.Timer `json:"timers"`
	Totals  ActiveTotals   `json:"totals"`
	AsOf    time.Time      `json:"as_of"`
}

// ListTimersFilter pages through an owner's timer history.
type ListTimersFilter struct {
	OwnerID  uuid.UUID            `json:"owner_id"`
	Statuses []models.TimerStatus `json:"statuses,omitempty"`
	Limit    int32                `json:"limit"`
	Offset   int32                `json:"offset"`
}

// NewTimer is what the repository persists for a start command.
type NewTimer struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	TicketID      *uuid.UUID
	AccountID     uuid.UUID
	BillingRateID *uuid.UUID
	Description   string
	DeviceID      string
	StartedAt     time.Time
	Metadata      models.TimerMetadata
}
