package booking

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds surfaced by the engine. Callers branch with
// errors.Is; the wrapped text carries the user-facing detail.
var (
	// ErrNotFound covers unknown ids and cross-tenant lookups. The two are
	// deliberately indistinguishable to the caller.
	ErrNotFound = errors.New("not found")
	// ErrSlotUnavailable covers every temporal rule violation and every
	// overlap conflict. Retryable: the caller picks another slot.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrState marks an illegal lifecycle transition, including a confirm
	// attempt on an already expired hold.
	ErrState = errors.New("invalid booking state")
	// ErrValidation marks malformed configuration or input, such as a
	// staff-service link with a non-positive duration. Not retryable.
	ErrValidation = errors.New("validation failed")
)

func unavailablef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSlotUnavailable, fmt.Sprintf(format, args...))
}

func statef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}
