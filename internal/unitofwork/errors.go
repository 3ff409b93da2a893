package unitofwork

import (
	"errors"
	"fmt"
)

// ErrIllegalState marks operations invoked out of phase order: committing
// before start, rolling back a unit that is not the active one, starting
// twice. These are programming errors and are never retried.
var ErrIllegalState = errors.New("illegal unit of work state")

// ErrNoActiveUnitOfWork is returned by Current when the flow has no active unit.
var ErrNoActiveUnitOfWork = fmt.Errorf("no active unit of work: %w", ErrIllegalState)

// IllegalStateError describes an operation rejected because of the unit's phase.
type IllegalStateError struct {
	Op     string
	Phase  Phase
	Reason string
}

// Error implements the error interface.
func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("cannot %s unit of work in phase %s: %s", e.Op, e.Phase, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *IllegalStateError) Unwrap() error {
	return ErrIllegalState
}

func illegalState(op string, phase Phase, reason string) error {
	return &IllegalStateError{Op: op, Phase: phase, Reason: reason}
}

// IsIllegalState checks if an error is an illegal state error.
func IsIllegalState(err error) bool {
	return errors.Is(err, ErrIllegalState)
}

// CallbackError wraps a failure returned by a phase callback.
type CallbackError struct {
	Phase Phase
	Err   error
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s callback failed: %v", e.Phase, e.Err)
}

// Unwrap returns the callback's own error.
func (e *CallbackError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered from a task or a callback so the unit
// can roll back before the panic resumes.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// joinAfter keeps primary intact when there is nothing secondary to report,
// so callers can still compare the returned error by identity.
func joinAfter(primary, secondary error) error {
	switch {
	case secondary == nil:
		return primary
	case primary == nil:
		return secondary
	default:
		return errors.Join(primary, secondary)
	}
}
