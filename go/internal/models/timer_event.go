package models

import (
	"time"

	"github.com/google/uuid"
)

// TimerEventType names a timer lifecycle notification.
type TimerEventType string

const (
	TimerEventStarted   TimerEventType = "TimerStarted"
	TimerEventUpdated   TimerEventType = "TimerUpdated"
	TimerEventPaused    TimerEventType = "TimerPaused"
	TimerEventResumed   TimerEventType = "TimerResumed"
	TimerEventStopped   TimerEventType = "TimerStopped"
	TimerEventCommitted TimerEventType = "TimerCommitted"
	TimerEventCanceled  TimerEventType = "TimerCanceled"
	TimerEventAdjusted  TimerEventType = "TimerAdjusted"
	TimerEventSynced    TimerEventType = "TimerSynced"
)

// TimerEvent is emitted after a timer mutation commits.
type TimerEvent struct {
	Type        TimerEventType `json:"type"`
	TimerID     uuid.UUID      `json:"timer_id"`
	OwnerID     uuid.UUID      `json:"owner_id"`
	DeviceID    string         `json:"device_id,omitempty"`
	TimeEntryID *uuid.UUID     `json:"time_entry_id,omitempty"`
	Timer       *Timer         `json:"timer,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}
