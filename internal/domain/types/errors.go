package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("requested item not found")
	ErrRideNotFound      = errors.New("ride not found")
	ErrForbidden         = errors.New("not authorized for this ride")
	ErrInvalidTransition = errors.New("invalid ride status transition")

	ErrActiveRideExists = errors.New("rider already has an active ride")
	ErrDriverBusy       = errors.New("driver already has an active ride")

	ErrCooldownActive  = errors.New("rider is in cancellation cooldown")
	ErrTooLateToCancel = errors.New("ride can no longer be cancelled")

	ErrStatusConflict        = errors.New("ride status changed concurrently")
	ErrConflictRetryExceeded = errors.New("concurrent ride update conflict")
	ErrRepositoryUnavailable = errors.New("ride storage unavailable")
)

// CooldownError carries the remaining wait so callers can report it.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("must wait %s before requesting another ride", e.Remaining.Round(time.Second))
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}

// TransitionError reports which transition was rejected.
type TransitionError struct {
	From, To RideStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
