package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

func TestApp_EmitInsertsRow(t *testing.T) {
	repo := newMemRepo()
	app := NewApp(repo)

	ev := models.TimerEvent{
		Type:       models.TimerEventPaused,
		TimerID:    uuid.New(),
		OwnerID:    uuid.New(),
		DeviceID:   "laptop",
		OccurredAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	app.Emit(context.Background(), ev)

	if len(repo.events) != 1 {
		t.Fatalf("rows = %d, want 1", len(repo.events))
	}
	row := repo.events[0]
	if row.EventType != "TimerPaused" {
		t.Errorf("EventType = %q, want TimerPaused", row.EventType)
	}
	if row.OwnerID != ev.OwnerID || row.TimerID != ev.TimerID {
		t.Errorf("row ids = %v/%v, want %v/%v", row.OwnerID, row.TimerID, ev.OwnerID, ev.TimerID)
	}
	var decoded models.TimerEvent
	if err := json.Unmarshal(row.Payload, &decoded); err != nil {
		t.Fatalf("payload is not a timer event: %v", err)
	}
	if decoded.DeviceID != "laptop" {
		t.Errorf("payload device = %q, want laptop", decoded.DeviceID)
	}
}

func TestApp_EmitSwallowsErrors(t *testing.T) {
	repo := newMemRepo()
	repo.insertErr = errBoom
	app := NewApp(repo)

	// must not panic or block
	app.Emit(context.Background(), models.TimerEvent{Type: models.TimerEventStarted, OwnerID: uuid.New()})

	if err := app.InsertTimerEvent(context.Background(), models.TimerEvent{Type: models.TimerEventStarted, OwnerID: uuid.New()}); err == nil {
		t.Error("InsertTimerEvent should surface the repository error")
	}
}

func TestApp_InsertTimerEventValidation(t *testing.T) {
	app := NewApp(newMemRepo())
	ctx := context.Background()

	if err := app.InsertTimerEvent(ctx, models.TimerEvent{OwnerID: uuid.New()}); err == nil {
		t.Error("empty event type should be rejected")
	}
	if err := app.InsertTimerEvent(ctx, models.TimerEvent{Type: models.TimerEventStarted}); err == nil {
		t.Error("missing owner should be rejected")
	}
}

func TestApp_FetchUnsentEvents(t *testing.T) {
	repo := newMemRepo()
	app := NewApp(repo)
	ctx := context.Background()
	first := repo.add("TimerStarted")
	repo.add("TimerStopped")

	events, err := app.FetchUnsentEvents(ctx, 1)
	if err != nil {
		t.Fatalf("FetchUnsentEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != first.ID {
		t.Errorf("events = %+v, want only %v", events, first.ID)
	}

	if _, err := app.FetchUnsentEvents(ctx, 0); err == nil {
		t.Error("zero limit should be rejected")
	}
}
