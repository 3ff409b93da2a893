package app

import (
	"context"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

// Outcome holds the result or the error of processing one message.
type Outcome struct {
	MessageID string
	Value     any
	Err       error
}

// ProcessConcurrently processes msgs with at most limit running at once and
// collects every outcome, in input order. One failure does not cancel the
// others. Each message is processed in its own flow, so the units of work
// are independent roots even when ctx carries an active unit.
//
// Example:
//
//	outcomes := p.ProcessConcurrently(ctx, 4, msgs)
//	for _, o := range outcomes {
//	    if o.Err != nil {
//	        log.Printf("%s: %v", o.MessageID, o.Err)
//	    }
//	}
func (p *Processor) ProcessConcurrently(ctx context.Context, limit int, msgs []messaging.Message) []Outcome {
	outcomes := make([]Outcome, len(msgs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, msg := range msgs {
		g.Go(func() error {
			value, err := p.processIsolated(unitofwork.WithFlow(ctx), msg)
			outcomes[i] = Outcome{MessageID: msg.ID, Value: value, Err: err}
			return nil
		})
	}

	_ = g.Wait()

	return outcomes
}

// processIsolated turns a handler panic into an error so one message cannot
// take the whole batch down. The unit of work has rolled back by the time the
// panic reaches here.
func (p *Processor) processIsolated(ctx context.Context, msg messaging.Message) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{
				Step:        StepHandle,
				MessageID:   msg.ID,
				MessageName: msg.Name,
				Cause:       &unitofwork.PanicError{Value: r, Stack: debug.Stack()},
			}
		}
	}()

	return p.Process(ctx, msg)
}

// FirstError returns the first failure among outcomes, or nil.
func FirstError(outcomes []Outcome) error {
	for _, o := range outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}
