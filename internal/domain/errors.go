package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrConflict      = errors.New("session was modified concurrently")
	ErrAlreadyExists = errors.New("session already exists")
	ErrNotReady      = errors.New("session diff not ready")
	ErrInvalidInput  = errors.New("invalid input")
)

// GuardViolation is returned when an event is not legal in the current status
// or its guard condition is false. Session state is left untouched.
type GuardViolation struct {
	From   Status
	Event  EventKind
	Reason string
}

func (e *GuardViolation) Error() string {
	return fmt.Sprintf("cannot apply %s in status %s: %s", e.Event, e.From, e.Reason)
}

// DetectionFailure means the detector could not process an image.
// Callers may retry; no session state was changed.
type DetectionFailure struct {
	Reason  string
	Timeout bool
	Err     error
}

func (e *DetectionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("detection failed: %s: %v", e.Reason, e.Err)
	}
	return "detection failed: " + e.Reason
}

func (e *DetectionFailure) Unwrap() error {
	return e.Err
}
