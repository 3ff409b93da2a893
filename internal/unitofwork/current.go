package unitofwork

import (
	"context"
	"slices"
	"sync"

	"github.com/jsamuelsen/msgflow/internal/messaging"
)

type flowKey struct{}

// flow is the stack of started units for one logical flow of execution.
// The most recently started unit is on top and is the active one.
type flow struct {
	mu    sync.Mutex
	units []*UnitOfWork
}

// WithFlow returns a context carrying a new, empty flow. Goroutines that
// process messages independently of their caller start from WithFlow so
// they do not share the caller's stack.
func WithFlow(ctx context.Context) context.Context {
	return context.WithValue(ctx, flowKey{}, &flow{})
}

func flowFrom(ctx context.Context) *flow {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(flowKey{}).(*flow)
	return f
}

func (f *flow) push(u *UnitOfWork) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units = append(f.units, u)
}

// remove drops u from the stack. Normally u is on top.
func (f *flow) remove(u *UnitOfWork) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := slices.Index(f.units, u); i >= 0 {
		f.units = slices.Delete(f.units, i, i+1)
	}
}

func (f *flow) top() *UnitOfWork {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.units) == 0 {
		return nil
	}
	return f.units[len(f.units)-1]
}

// above returns the units started after u that are still on the stack,
// innermost last.
func (f *flow) above(u *UnitOfWork) []*UnitOfWork {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(f.units, u)
	if i < 0 {
		return nil
	}
	return slices.Clone(f.units[i+1:])
}

// Current returns the active unit of work of the flow carried by ctx.
// It fails with ErrNoActiveUnitOfWork when none is active.
func Current(ctx context.Context) (*UnitOfWork, error) {
	if f := flowFrom(ctx); f != nil {
		if u := f.top(); u != nil {
			return u, nil
		}
	}
	return nil, ErrNoActiveUnitOfWork
}

// IsStarted reports whether the flow carried by ctx has an active unit of work.
func IsStarted(ctx context.Context) bool {
	_, err := Current(ctx)
	return err == nil
}

// IfStarted calls fn with the active unit of work, if there is one.
func IfStarted(ctx context.Context, fn func(u *UnitOfWork)) {
	if u, err := Current(ctx); err == nil {
		fn(u)
	}
}

// CorrelationData returns the correlation data of the active unit of work,
// or empty metadata when none is active.
func CorrelationData(ctx context.Context) messaging.MetaData {
	if u, err := Current(ctx); err == nil {
		return u.CorrelationData()
	}
	return messaging.MetaData{}
}
