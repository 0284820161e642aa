package rul

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLifetime is returned when the nominal lifetime is not a positive number
	ErrInvalidLifetime = errors.New("nominal lifetime must be a positive number of hours")

	// ErrInvalidStep is returned when the sampling step is not positive
	ErrInvalidStep = errors.New("sampling step must be a positive number of hours")

	// ErrTooManySamples is returned when lifetime/step exceeds MaxSamples
	ErrTooManySamples = errors.New("lifetime too long for the sampling step")

	// ErrMalformedEvent is wrapped by every EventError
	ErrMalformedEvent = errors.New("malformed degradation event")
)

// EventError describes why a single event was rejected
type EventError struct {
	Index   int
	Name    string
	Message string
}

// Error implements the error interface
func (e *EventError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("event %d (%s): %s", e.Index, e.Name, e.Message)
	}
	return fmt.Sprintf("event %d: %s", e.Index, e.Message)
}

// Unwrap lets callers match ErrMalformedEvent with errors.Is
func (e *EventError) Unwrap() error {
	return ErrMalformedEvent
}

// ValidateEvent checks a single event against the model's input rules.
func ValidateEvent(index int, ev Event) error {
	fail := func(format string, args ...any) error {
		return &EventError{Index: index, Name: ev.Name, Message: fmt.Sprintf(format, args...)}
	}

	if !isFinite(ev.Time) || ev.Time < 0 {
		return fail("time %v must be a non-negative number of hours", ev.Time)
	}
	if ev.Severity < MinSeverity || ev.Severity > MaxSeverity {
		return fail("severity %d outside %d-%d", ev.Severity, MinSeverity, MaxSeverity)
	}
	if ev.Repaired() {
		if !isFinite(*ev.RepairTime) || *ev.RepairTime <= ev.Time {
			return fail("repair time %v must be after event time %v", *ev.RepairTime, ev.Time)
		}
	}
	if !isFinite(ev.RepairEffectiveness) || ev.RepairEffectiveness < 0 || ev.RepairEffectiveness > 1 {
		return fail("repair effectiveness %v outside 0-1", ev.RepairEffectiveness)
	}
	return nil
}

// ValidateEvents checks every event and joins all failures.
func ValidateEvents(events []Event) error {
	var errs []error
	for i, ev := range events {
		if err := ValidateEvent(i, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
