// Package apperr is the error taxonomy shared by every component.
// Services wrap these sentinels with context; callers branch with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyTerminal   = errors.New("case already in a terminal state")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnavailable       = errors.New("dependency unavailable")
)

// Forbidden wraps ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// InvalidArgument wraps ErrInvalidArgument with a formatted detail.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing entity name.
func NotFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

// Code returns the stable API code for err, or "" when err is not part of the taxonomy.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrAlreadyTerminal):
		return "ALREADY_TERMINAL"
	case errors.Is(err, ErrSlotUnavailable):
		return "SLOT_UNAVAILABLE"
	case errors.Is(err, ErrInvalidRecipient):
		return "INVALID_RECIPIENT"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	}
	return ""
}
