package timers

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return epoch.Add(d) }

func ptrTime(t time.Time) *time.Time { return &t }

func runningTimer() *models.Timer {
	return &models.Timer{ID: uuid.New(), OwnerID: uuid.New(), Status: models.TimerStatusRunning, StartedAt: epoch}
}

func TestElapsed(t *testing.T) {
	tests := []struct {
		name  string
		timer models.Timer
		now   time.Time
		want  time.Duration
	}{
		{
			name:  "running",
			timer: models.Timer{Status: models.TimerStatusRunning, StartedAt: epoch, TotalPausedSeconds: 60},
			now:   at(10 * time.Minute),
			want:  9 * time.Minute,
		},
		{
			name: "paused ends at paused_at",
			timer: models.Timer{Status: models.TimerStatusPaused, StartedAt: epoch,
				PausedAt: ptrTime(at(5 * time.Minute))},
			now:  at(time.Hour),
			want: 5 * time.Minute,
		},
		{
			name: "stopped ends at stopped_at",
			timer: models.Timer{Status: models.TimerStatusStopped, StartedAt: epoch,
				StoppedAt: ptrTime(at(20 * time.Minute)), TotalPausedSeconds: 300},
			now:  at(time.Hour),
			want: 15 * time.Minute,
		},
		{
			name:  "clamped at zero",
			timer: models.Timer{Status: models.TimerStatusRunning, StartedAt: at(time.Minute)},
			now:   epoch,
			want:  0,
		},
		{
			name:  "paused longer than run",
			timer: models.Timer{Status: models.TimerStatusRunning, StartedAt: epoch, TotalPausedSeconds: 7200},
			now:   at(time.Hour),
			want:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Elapsed(&tt.timer, tt.now); got != tt.want {
				t.Errorf("Elapsed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPauseResumeAccounting(t *testing.T) {
	tm := runningTimer()

	if err := Pause(tm, at(10*time.Minute)); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if tm.Status != models.TimerStatusPaused || tm.PausedAt == nil {
		t.Fatalf("after pause: status = %s, paused_at = %v", tm.Status, tm.PausedAt)
	}

	if err := Resume(tm, at(15*time.Minute)); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if tm.TotalPausedSeconds != 300 {
		t.Errorf("TotalPausedSeconds = %d, want 300", tm.TotalPausedSeconds)
	}
	if tm.PausedAt != nil {
		t.Errorf("PausedAt = %v, want nil", tm.PausedAt)
	}

	// A second resume must not add the interval again.
	err := Resume(tm, at(20*time.Minute))
	var inv *InvalidTransitionError
	if !errors.As(err, &inv) {
		t.Fatalf("second Resume() error = %v, want InvalidTransitionError", err)
	}
	if inv.Command != CommandResume || inv.From != models.TimerStatusRunning {
		t.Errorf("error = %+v", inv)
	}
	if tm.TotalPausedSeconds != 300 {
		t.Errorf("TotalPausedSeconds after replay = %d, want 300", tm.TotalPausedSeconds)
	}

	if got := Elapsed(tm, at(20*time.Minute)); got != 15*time.Minute {
		t.Errorf("Elapsed() = %v, want 15m", got)
	}
}

func TestResumeRequiresPausedAt(t *testing.T) {
	tm := runningTimer()
	tm.Status = models.TimerStatusPaused
	if err := Resume(tm, at(time.Minute)); err == nil {
		t.Error("Resume() with nil paused_at succeeded, want error")
	}
}

func TestResumeClockSkewFloorsAtZero(t *testing.T) {
	tm := runningTimer()
	if err := Pause(tm, at(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := Resume(tm, at(9*time.Minute)); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if tm.TotalPausedSeconds != 0 {
		t.Errorf("TotalPausedSeconds = %d, want 0", tm.TotalPausedSeconds)
	}
}

func TestPauseRequiresRunning(t *testing.T) {
	tm := runningTimer()
	if err := Pause(tm, at(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := Pause(tm, at(2*time.Minute)); err == nil {
		t.Error("Pause() on paused timer succeeded, want error")
	}
}

func TestFinishFoldsOpenPause(t *testing.T) {
	tm := runningTimer()
	if err := Pause(tm, at(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := Finish(tm, models.TimerStatusStopped, CommandStop, at(25*time.Minute)); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if tm.Status != models.TimerStatusStopped {
		t.Errorf("Status = %s, want stopped", tm.Status)
	}
	if tm.TotalPausedSeconds != 900 || tm.PausedAt != nil {
		t.Errorf("TotalPausedSeconds = %d, PausedAt = %v", tm.TotalPausedSeconds, tm.PausedAt)
	}
	if tm.StoppedAt == nil || !tm.StoppedAt.Equal(at(25*time.Minute)) {
		t.Errorf("StoppedAt = %v", tm.StoppedAt)
	}
	if got := Elapsed(tm, at(time.Hour)); got != 10*time.Minute {
		t.Errorf("Elapsed() = %v, want 10m", got)
	}
}

func TestFinishRejectsActiveTarget(t *testing.T) {
	tm := runningTimer()
	if err := Finish(tm, models.TimerStatusPaused, CommandStop, at(time.Minute)); err == nil {
		t.Error("Finish() to paused succeeded, want error")
	}
}

func TestTerminalStatesRejectEveryCommand(t *testing.T) {
	for _, status := range []models.TimerStatus{
		models.TimerStatusStopped, models.TimerStatusCommitted, models.TimerStatusCanceled,
	} {
		t.Run(string(status), func(t *testing.T) {
			tm := runningTimer()
			tm.Status = status
			tm.StoppedAt = ptrTime(at(time.Minute))
			before := *tm
			now := at(time.Hour)

			errs := map[string]error{
				"pause":  Pause(tm, now),
				"resume": Resume(tm, now),
				"stop":   Finish(tm, models.TimerStatusStopped, CommandStop, now),
				"commit": Finish(tm, models.TimerStatusCommitted, CommandCommit, now),
				"cancel": Finish(tm, models.TimerStatusCanceled, CommandCancel, now),
				"adjust": Adjust(tm, models.AdjustModeAdd, 60, uuid.New(), "", now),
			}
			for name, err := range errs {
				var inv *InvalidTransitionError
				if !errors.As(err, &inv) {
					t.Errorf("%s: error = %v, want InvalidTransitionError", name, err)
				}
			}
			if tm.Status != before.Status || !tm.StartedAt.Equal(before.StartedAt) ||
				tm.TotalPausedSeconds != before.TotalPausedSeconds || !tm.StoppedAt.Equal(*before.StoppedAt) {
				t.Errorf("terminal timer changed: %+v", tm)
			}
		})
	}
}

func TestAdjust(t *testing.T) {
	by := uuid.New()

	t.Run("set while running", func(t *testing.T) {
		tm := runningTimer()
		tm.TotalPausedSeconds = 120
		now := at(10 * time.Minute)
		if err := Adjust(tm, models.AdjustModeSet, 3600, by, "laptop", now); err != nil {
			t.Fatal(err)
		}
		if got := Elapsed(tm, now); got != time.Hour {
			t.Errorf("Elapsed() = %v, want 1h", got)
		}
		if len(tm.Metadata.Adjustments) != 1 {
			t.Fatalf("adjustments = %d, want 1", len(tm.Metadata.Adjustments))
		}
		adj := tm.Metadata.Adjustments[0]
		if adj.Mode != models.AdjustModeSet || adj.Seconds != 3600 || adj.By != by || adj.Device != "laptop" {
			t.Errorf("adjustment = %+v", adj)
		}
	})

	t.Run("set while paused uses paused_at", func(t *testing.T) {
		tm := runningTimer()
		if err := Pause(tm, at(10*time.Minute)); err != nil {
			t.Fatal(err)
		}
		if err := Adjust(tm, models.AdjustModeSet, 1800, by, "", at(time.Hour)); err != nil {
			t.Fatal(err)
		}
		if got := Elapsed(tm, at(2*time.Hour)); got != 30*time.Minute {
			t.Errorf("Elapsed() = %v, want 30m", got)
		}
		if tm.Status != models.TimerStatusPaused {
			t.Errorf("Status = %s, want paused", tm.Status)
		}
	})

	t.Run("add and subtract", func(t *testing.T) {
		tm := runningTimer()
		now := at(10 * time.Minute)
		if err := Adjust(tm, models.AdjustModeAdd, 300, by, "", now); err != nil {
			t.Fatal(err)
		}
		if got := Elapsed(tm, now); got != 15*time.Minute {
			t.Errorf("after add Elapsed() = %v, want 15m", got)
		}
		if err := Adjust(tm, models.AdjustModeSubtract, 600, by, "", now); err != nil {
			t.Fatal(err)
		}
		if got := Elapsed(tm, now); got != 5*time.Minute {
			t.Errorf("after subtract Elapsed() = %v, want 5m", got)
		}
	})

	t.Run("subtract below zero clamps elapsed", func(t *testing.T) {
		tm := runningTimer()
		now := at(time.Minute)
		if err := Adjust(tm, models.AdjustModeSubtract, 3600, by, "", now); err != nil {
			t.Fatal(err)
		}
		if got := Elapsed(tm, now); got != 0 {
			t.Errorf("Elapsed() = %v, want 0", got)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		tm := runningTimer()
		if err := Adjust(tm, models.AdjustModeAdd, -1, by, "", epoch); !errors.Is(err, ErrValidation) {
			t.Errorf("negative seconds error = %v, want ErrValidation", err)
		}
		if err := Adjust(tm, "multiply", 1, by, "", epoch); !errors.Is(err, ErrValidation) {
			t.Errorf("unknown mode error = %v, want ErrValidation", err)
		}
		if err := Adjust(tm, models.AdjustModeAdd, MaxDurationSeconds+1, by, "", epoch); !errors.Is(err, ErrValidation) {
			t.Errorf("oversized seconds error = %v, want ErrValidation", err)
		}
		if !tm.StartedAt.Equal(epoch) {
			t.Errorf("StartedAt = %v, want unchanged %v", tm.StartedAt, epoch)
		}
		if len(tm.Metadata.Adjustments) != 0 {
			t.Errorf("rejected adjustment was recorded")
		}
	})
}
