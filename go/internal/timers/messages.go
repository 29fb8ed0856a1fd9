package timers

import (
	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// Wire messages for TimerService. Request bodies embed the app request types.

type GetTimerRequest struct {
	TimerID uuid.UUID `json:"timer_id"`
}

type TimerCommandRequest struct {
	TimerID  uuid.UUID `json:"timer_id"`
	DeviceID string    `json:"device_id"`
}

type UpdateRequest struct {
	TimerID uuid.UUID `json:"timer_id"`
	UpdateTimerRequest
}

type StopRequest struct {
	TimerID uuid.UUID `json:"timer_id"`
	StopTimerRequest
}

type CommitRequest struct {
	TimerID uuid.UUID `json:"timer_id"`
	CommitTimerRequest
}

type AdjustRequest struct {
	TimerID uuid.UUID `json:"timer_id"`
	AdjustDurationRequest
}

type MarkCommittedRequest struct {
	TimerID     uuid.UUID `json:"timer_id"`
	TimeEntryID uuid.UUID `json:"time_entry_id"`
	DeviceID    string    `json:"device_id"`
}

type SyncRequest struct {
	OwnerID  uuid.UUID         `json:"owner_id"`
	DeviceID string            `json:"device_id"`
	Known    []KnownTimerState `json:"known"`
}

type OwnerRequest struct {
	OwnerID uuid.UUID `json:"owner_id"`
}

type TimerResponse struct {
	Timer *models.Timer `json:"timer"`
}

type SyncResponse struct {
	Result  *SyncResult `json:"result"`
	Warning string      `json:"warning,omitempty"`
}

type ListTimersResponse struct {
	Timers []models.Timer `json:"timers"`
}
