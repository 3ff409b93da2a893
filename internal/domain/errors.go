// Package domain contains the processing entities and errors.
//
// Errors here describe why processing a message failed. They know nothing of
// HTTP; adapters map them with the Is helpers.
package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is. Every error type below unwraps to one.
var (
	ErrNoHandler   = errors.New("no handler")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation failed")
	ErrUnavailable = errors.New("unavailable")
)

// NoHandlerError reports a message name nothing is registered for.
type NoHandlerError struct {
	MessageName string
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for message %q", e.MessageName)
}

func (e *NoHandlerError) Unwrap() error { return ErrNoHandler }

// NewNoHandlerError returns a *NoHandlerError for messageName.
func NewNoHandlerError(messageName string) error {
	return &NoHandlerError{MessageName: messageName}
}

// ConflictError reports state that forbids the operation, such as an event
// recorded twice for the same message.
type ConflictError struct {
	Entity  string
	Reason  string
	Details string
}

func (e *ConflictError) Error() string {
	msg := e.Entity + " conflict: " + e.Reason
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflictError returns a *ConflictError.
func NewConflictError(entity, reason string) error {
	return &ConflictError{Entity: entity, Reason: reason}
}

// NewConflictErrorWithDetails returns a *ConflictError carrying details, for
// example the conflicting id.
func NewConflictErrorWithDetails(entity, reason, details string) error {
	return &ConflictError{Entity: entity, Reason: reason, Details: details}
}

// ValidationError reports an invalid message or request. Field is empty when
// the message as a whole is rejected.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return "validation failed for " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError returns a *ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorWithValue returns a *ValidationError recording the
// rejected value.
func NewValidationErrorWithValue(field, message string, value any) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// UnavailableError reports a dependency, such as the outbox store or the
// webhook relay, that cannot serve right now.
type UnavailableError struct {
	Service string
	Reason  string
}

func (e *UnavailableError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("service %q unavailable", e.Service)
	}
	return fmt.Sprintf("service %q unavailable: %s", e.Service, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// NewUnavailableError returns an *UnavailableError.
func NewUnavailableError(service, reason string) error {
	return &UnavailableError{Service: service, Reason: reason}
}

// IsNoHandler reports whether err is or wraps ErrNoHandler.
func IsNoHandler(err error) bool { return errors.Is(err, ErrNoHandler) }

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation reports whether err is or wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsUnavailable reports whether err is or wraps ErrUnavailable.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
