package models

import (
	"time"

	"github.com/google/uuid"
)

// TimerStatus defines where a timer is in its lifecycle.
type TimerStatus string

const (
	TimerStatusRunning   TimerStatus = "running"
	TimerStatusPaused    TimerStatus = "paused"
	TimerStatusStopped   TimerStatus = "stopped"
	TimerStatusCommitted TimerStatus = "committed"
	TimerStatusCanceled  TimerStatus = "canceled"
)

// IsActive reports whether the status is running or paused.
func (s TimerStatus) IsActive() bool {
	return s == TimerStatusRunning || s == TimerStatusPaused
}

// IsTerminal reports whether no further lifecycle command may apply.
func (s TimerStatus) IsTerminal() bool {
	return s == TimerStatusStopped || s == TimerStatusCommitted || s == TimerStatusCanceled
}

// AdjustMode is how a manual duration adjustment is applied.
type AdjustMode string

const (
	AdjustModeSet      AdjustMode = "set"
	AdjustModeAdd      AdjustMode = "add"
	AdjustModeSubtract AdjustMode = "subtract"
)

// Adjustment records one manual duration change.
type Adjustment struct {
	Mode    AdjustMode `json:"mode"`
	Seconds int64      `json:"seconds"`
	At      time.Time  `json:"at"`
	By      uuid.UUID  `json:"by"`
	Device  string     `json:"device,omitempty"`
}

// TimerMetadata holds JSONB audit annotations. Never authoritative for state.
type TimerMetadata struct {
	Adjustments  []Adjustment      `json:"adjustments,omitempty"`
	OriginDevice string            `json:"origin_device,omitempty"`
	LastDevice   string            `json:"last_device,omitempty"`
	ActedBy      *uuid.UUID        `json:"acted_by,omitempty"` // set when someone other than the owner acted last
	Annotations  map[string]string `json:"annotations,omitempty"`
}

// Timer is the live tracking record for ongoing work.
type Timer struct {
	ID                 uuid.UUID     `json:"id"`
	OwnerID            uuid.UUID     `json:"owner_id"`
	TicketID           *uuid.UUID    `json:"ticket_id,omitempty"`
	AccountID          uuid.UUID     `json:"account_id"`
	BillingRateID      *uuid.UUID    `json:"billing_rate_id,omitempty"`
	Description        string        `json:"description"`
	Status             TimerStatus   `json:"status"`
	StartedAt          time.Time     `json:"started_at"`
	PausedAt           *time.Time    `json:"paused_at,omitempty"`
	StoppedAt          *time.Time    `json:"stopped_at,omitempty"`
	TotalPausedSeconds int64         `json:"total_paused_seconds"`
	DeviceOrigin       string        `json:"device_origin"`
	LinkedTimeEntryID  *uuid.UUID    `json:"linked_time_entry_id,omitempty"`
	Metadata           TimerMetadata `json:"metadata"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// TimerSnapshotEntry is the cached view of a single active timer.
type TimerSnapshotEntry struct {
	TimerID   uuid.UUID   `json:"timer_id" cbor:"timer_id"`
	Status    TimerStatus `json:"status" cbor:"status"`
	UpdatedAt time.Time   `json:"updated_at" cbor:"updated_at"`
}

// TimerSnapshot is the per-user active timer list kept in the fast cache.
type TimerSnapshot struct {
	OwnerID    uuid.UUID            `json:"owner_id" cbor:"owner_id"`
	Timers     []TimerSnapshotEntry `json:"timers" cbor:"timers"`
	DeviceID   string               `json:"device_id,omitempty" cbor:"device_id,omitempty"`
	ResolvedAt time.Time            `json:"resolved_at" cbor:"resolved_at"`
}
