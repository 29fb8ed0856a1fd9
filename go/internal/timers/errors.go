package timers

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

var (
	// ErrTimerNotFound is returned when no timer exists for the given id.
	ErrTimerNotFound = errors.New("timer not found")
	// ErrReconciliationDegraded marks a sync that could not read or write the
	// snapshot cache. It is reported on SyncResult, never returned.
	ErrReconciliationDegraded = errors.New("reconciliation degraded: snapshot cache unavailable")
	// ErrValidation wraps malformed requests.
	ErrValidation = errors.New("validation failed")

	errRateChanged = errors.New("billing rate changed while converting")
)

// DuplicateActiveTimerError means the owner already has an active timer on the ticket.
type DuplicateActiveTimerError struct {
	OwnerID            uuid.UUID
	TicketID           uuid.UUID
	ConflictingTimerID uuid.UUID
}

func (e *DuplicateActiveTimerError) Error() string {
	return fmt.Sprintf("owner %s already has active timer %s on ticket %s",
		e.OwnerID, e.ConflictingTimerID, e.TicketID)
}

// InvalidTransitionError means the command is not legal from the timer's current status.
type InvalidTransitionError struct {
	TimerID uuid.UUID
	From    models.TimerStatus
	Command Command
}

func (e *InvalidTransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("cannot %s timer %s: timer is %s (terminal)", e.Command, e.TimerID, e.From)
	}
	return fmt.Sprintf("cannot %s timer %s from status %s", e.Command, e.TimerID, e.From)
}

// ConversionFailureError means the timer could not be converted into a time entry.
// Nothing was written, so the call is safe to retry.
type ConversionFailureError struct {
	TimerID uuid.UUID
	Err     error
}

func (e *ConversionFailureError) Error() string {
	return fmt.Sprintf("failed to convert timer %s to time entry: %v", e.TimerID, e.Err)
}

func (e *ConversionFailureError) Unwrap() error { return e.Err }

// AuthorizationError means the caller may not perform the action.
type AuthorizationError struct {
	CallerID uuid.UUID
	Action   string
	Target   uuid.UUID
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s is not allowed to %s %s", e.CallerID, e.Action, e.Target)
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
