package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/servicedesk/go/internal/models"
)

// FeedEvent is the frame written to websocket clients.
type FeedEvent struct {
	ID        string                `json:"id"`
	OwnerID   string                `json:"owner_id"`
	TimerID   string                `json:"timer_id"`
	Type      models.TimerEventType `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
	Data      json.RawMessage       `json:"data"`
}

var knownEventTypes = map[models.TimerEventType]bool{
	models.TimerEventStarted:   true,
	models.TimerEventUpdated:   true,
	models.TimerEventPaused:    true,
	models.TimerEventResumed:   true,
	models.TimerEventStopped:   true,
	models.TimerEventCommitted: true,
	models.TimerEventCanceled:  true,
	models.TimerEventAdjusted:  true,
	models.TimerEventSynced:    true,
}

// ParseEventType maps a stream event type onto the timer event vocabulary.
func ParseEventType(s string) (models.TimerEventType, error) {
	t := models.TimerEventType(s)
	if !knownEventTypes[t] {
		return "", fmt.Errorf("unknown event type: %s", s)
	}
	return t, nil
}

// ParseEventPayload decodes the timer event carried in a feed frame.
func ParseEventPayload(event *FeedEvent) (*models.TimerEvent, error) {
	var payload models.TimerEvent
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return &payload, nil
}
