// Package ports defines interfaces for external dependencies.
// Ports are contracts that adapters implement, allowing the application layer
// to depend on abstractions rather than concrete implementations.
//
// Port Design Principles:
//   - Context as first parameter (always) for cancellation and deadlines
//   - Return domain types, never external DTOs or infrastructure types
//   - Error returns use domain error types (ErrConflict, ErrUnavailable, etc.)
//   - Keep interfaces small and focused (Interface Segregation Principle)
//
// Implementations called while a unit of work is active bind their side
// effects to it through unitofwork.Current(ctx).
package ports

import (
	"context"

	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/messaging"
)

// MessageHandler processes one message. It runs inside the unit of work
// created for the message, which ctx carries.
type MessageHandler interface {
	// Handle returns the result reported to the sender. Returning an error
	// rolls the unit of work back unless the rollback policy says otherwise.
	Handle(ctx context.Context, msg messaging.Message) (any, error)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg messaging.Message) (any, error)

// Handle calls f(ctx, msg).
func (f MessageHandlerFunc) Handle(ctx context.Context, msg messaging.Message) (any, error) {
	return f(ctx, msg)
}

// EventPublisher delivers events to subscribers.
type EventPublisher interface {
	// Publish delivers events. Inside an active unit of work delivery is
	// deferred until the unit has committed, and dropped if it rolls back.
	Publish(ctx context.Context, events ...messaging.Message) error
}

// EventStore records events durably.
type EventStore interface {
	// Append records events. Inside an active unit of work the events become
	// visible only once the unit commits.
	// Returns domain.ErrConflict if a message id was already recorded.
	Append(ctx context.Context, events ...messaging.Message) error

	// List returns at most limit events with a sequence greater than after,
	// in sequence order.
	List(ctx context.Context, after int64, limit int) ([]domain.Event, error)
}
