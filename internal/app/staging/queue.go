package staging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

const queueResourceKey = "staging.queue"

// Action is a write deferred until the unit of work commits.
type Action interface {
	// Execute performs the action.
	Execute(ctx context.Context) error

	// Rollback undoes the action.
	Rollback(ctx context.Context) error

	// Description returns a human-readable description for logging.
	Description() string
}

// Queue holds the actions staged under one unit of work.
type Queue struct {
	mu       sync.Mutex
	unit     *unitofwork.UnitOfWork
	actions  []Action
	executed []Action
	closed   bool
}

// For returns the queue of the unit of work active in ctx, creating it on
// first use.
func For(ctx context.Context) (*Queue, error) {
	u, err := unitofwork.Current(ctx)
	if err != nil {
		return nil, err
	}
	return Of(u), nil
}

// Of returns the queue bound to u, creating it on first use.
func Of(u *unitofwork.UnitOfWork) *Queue {
	return u.GetOrComputeResource(queueResourceKey, func(string) any {
		q := &Queue{unit: u}
		u.OnPrepareCommit(q.execute)
		u.OnRollback(q.rollback)
		return q
	}).(*Queue)
}

// Add stages an action.
func (q *Queue) Add(action Action) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.actions = append(q.actions, action)
	return nil
}

// Actions returns a copy of the staged actions.
func (q *Queue) Actions() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Action, len(q.actions))
	copy(out, q.actions)
	return out
}

// Executed returns a copy of the actions that ran and were not undone.
func (q *Queue) Executed() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Action, len(q.executed))
	copy(out, q.executed)
	return out
}

func (q *Queue) execute(u *unitofwork.UnitOfWork) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	ctx := u.Context()

	for _, action := range q.actions {
		if err := action.Execute(ctx); err != nil {
			q.undo(ctx, u.Logger())
			return fmt.Errorf("action %q failed: %w", action.Description(), err)
		}
		q.executed = append(q.executed, action)
	}

	return nil
}

func (q *Queue) rollback(u *unitofwork.UnitOfWork, _ error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.undo(u.Context(), u.Logger())
	return nil
}

// undo rolls back executed actions in reverse. Failures are logged and the
// remaining actions are still undone.
func (q *Queue) undo(ctx context.Context, logger *slog.Logger) {
	for i := len(q.executed) - 1; i >= 0; i-- {
		action := q.executed[i]
		if err := action.Rollback(ctx); err != nil {
			logger.WarnContext(ctx, "staged action rollback failed",
				slog.String("action", action.Description()),
				slog.Any("error", err),
			)
		}
	}
	q.executed = nil
}
