package reservation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrLocationNotFound    = errors.New("parking location not found")
	ErrLocationClosed      = errors.New("parking location is not accepting bookings")
	ErrNoCapacity          = errors.New("no spots available")
	ErrInvalidWindow       = errors.New("end time must be after start time")
	ErrWindowInPast        = errors.New("reservation window has already ended")
	ErrDurationTooLong     = errors.New("reservation is longer than allowed")
	ErrAmountMismatch      = errors.New("amount does not match the quote")
	ErrInvalidExtension    = errors.New("new end time must be after the current one")
	ErrPaymentUnavailable  = errors.New("payment provider unavailable")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAlreadyTerminal     = errors.New("reservation is already finished")
)

// TransitionError is returned when a reservation cannot move from its
// current status to the requested one.
type TransitionError struct {
	ID   uuid.UUID
	From domain.Status
	To   domain.Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("reservation %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e TransitionError) Unwrap() error {
	if e.From.IsTerminal() {
		return ErrAlreadyTerminal
	}
	return ErrInvalidTransition
}
