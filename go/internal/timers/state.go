package timers

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

// Command is a lifecycle operation on a timer.
type Command string

const (
	CommandPause         Command = "pause"
	CommandResume        Command = "resume"
	CommandStop          Command = "stop"
	CommandCommit        Command = "commit"
	CommandCancel        Command = "cancel"
	CommandAdjust        Command = "adjust_duration"
	CommandUpdate        Command = "update"
	CommandMarkCommitted Command = "mark_committed"
)

// MaxDurationSeconds bounds every caller-supplied duration (five years).
const MaxDurationSeconds int64 = 5 * 365 * 24 * 60 * 60

// Elapsed returns billable running time: end - started_at - total paused,
// where end is now for a running timer, paused_at for a paused one and
// stopped_at for a finished one. Never negative.
func Elapsed(t *models.Timer, now time.Time) time.Duration {
	end := now
	if t.Status != models.TimerStatusRunning {
		switch {
		case t.PausedAt != nil:
			end = *t.PausedAt
		case t.StoppedAt != nil:
			end = *t.StoppedAt
		}
	}
	d := end.Sub(t.StartedAt) - time.Duration(t.TotalPausedSeconds)*time.Second
	if d < 0 {
		return 0
	}
	return d
}

func invalid(t *models.Timer, cmd Command) error {
	return &InvalidTransitionError{TimerID: t.ID, From: t.Status, Command: cmd}
}

// Pause moves a running timer to paused.
func Pause(t *models.Timer, now time.Time) error {
	if t.Status != models.TimerStatusRunning {
		return invalid(t, CommandPause)
	}
	t.Status = models.TimerStatusPaused
	t.PausedAt = &now
	return nil
}

// Resume moves a paused timer back to running. paused_at is the guard: it is
// cleared in the same step that folds the interval into total_paused_seconds,
// so a repeated resume fails instead of counting the interval twice.
func Resume(t *models.Timer, now time.Time) error {
	if t.Status != models.TimerStatusPaused || t.PausedAt == nil {
		return invalid(t, CommandResume)
	}
	foldPause(t, now)
	t.Status = models.TimerStatusRunning
	return nil
}

// Finish moves an active timer to a terminal status (stopped, committed or
// canceled). An open pause interval is folded in before stopped_at is set.
func Finish(t *models.Timer, to models.TimerStatus, cmd Command, now time.Time) error {
	if !t.Status.IsActive() || !to.IsTerminal() {
		return invalid(t, cmd)
	}
	if t.Status == models.TimerStatusPaused {
		foldPause(t, now)
	}
	t.Status = to
	t.StoppedAt = &now
	return nil
}

// Adjust shifts started_at so the elapsed time is set to, or moved by, seconds.
// Status is unchanged and the adjustment is recorded in metadata.
func Adjust(t *models.Timer, mode models.AdjustMode, seconds int64, by uuid.UUID, device string, now time.Time) error {
	if !t.Status.IsActive() {
		return invalid(t, CommandAdjust)
	}
	if seconds < 0 || seconds > MaxDurationSeconds {
		return validationError("adjust seconds must be between 0 and %d, got %d", MaxDurationSeconds, seconds)
	}
	shift := time.Duration(seconds) * time.Second

	switch mode {
	case models.AdjustModeSet:
		ref := now
		if t.Status == models.TimerStatusPaused && t.PausedAt != nil {
			ref = *t.PausedAt
		}
		paused := time.Duration(t.TotalPausedSeconds) * time.Second
		t.StartedAt = ref.Add(-shift - paused)
	case models.AdjustModeAdd:
		t.StartedAt = t.StartedAt.Add(-shift)
	case models.AdjustModeSubtract:
		t.StartedAt = t.StartedAt.Add(shift)
	default:
		return validationError("unknown adjust mode %q", mode)
	}

	t.Metadata.Adjustments = append(t.Metadata.Adjustments, models.Adjustment{
		Mode:    mode,
		Seconds: seconds,
		At:      now,
		By:      by,
		Device:  device,
	})
	return nil
}

// foldPause adds the open pause interval to total_paused_seconds and clears
// paused_at. A clock that went backwards contributes zero.
func foldPause(t *models.Timer, now time.Time) {
	if t.PausedAt == nil {
		return
	}
	delta := int64(now.Sub(*t.PausedAt) / time.Second)
	if delta < 0 {
		delta = 0
	}
	t.TotalPausedSeconds += delta
	t.PausedAt = nil
}
