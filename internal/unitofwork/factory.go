package unitofwork

import (
	"context"
	"log/slog"

	"github.com/jsamuelsen/msgflow/internal/messaging"
)

// Option configures a unit of work at creation.
type Option func(*UnitOfWork)

// WithLogger replaces the logger taken from the context. The unit still
// tags it with its message.
func WithLogger(logger *slog.Logger) Option {
	return func(u *UnitOfWork) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithRollbackPolicy sets the policy Execute applies to task failures.
func WithRollbackPolicy(policy RollbackPolicy) Option {
	return func(u *UnitOfWork) {
		if policy != nil {
			u.policy = policy
		}
	}
}

// WithPhaseListener adds listeners notified on every phase transition.
func WithPhaseListener(listeners ...PhaseListener) Option {
	return func(u *UnitOfWork) {
		u.listeners = append(u.listeners, listeners...)
	}
}

// WithCorrelationDataProvider registers providers at creation.
func WithCorrelationDataProvider(providers ...messaging.CorrelationDataProvider) Option {
	return func(u *UnitOfWork) {
		u.providers = append(u.providers, providers...)
	}
}

// WithMaxDepth limits how many ancestors a unit may have. Zero means no limit.
func WithMaxDepth(depth int) Option {
	return func(u *UnitOfWork) {
		u.maxDepth = depth
	}
}

// Factory creates units of work sharing a set of default options.
type Factory struct {
	defaults []Option
}

// NewFactory returns a factory applying defaults to every unit it creates.
func NewFactory(defaults ...Option) *Factory {
	return &Factory{defaults: defaults}
}

// Create returns a new, not yet started, unit of work for msg. opts are
// applied after the factory defaults.
func (f *Factory) Create(ctx context.Context, msg messaging.Message, opts ...Option) *UnitOfWork {
	return New(ctx, msg, f.options(opts)...)
}

// StartAndGet creates and starts a unit of work for msg.
func (f *Factory) StartAndGet(ctx context.Context, msg messaging.Message, opts ...Option) (*UnitOfWork, error) {
	return StartAndGet(ctx, msg, f.options(opts)...)
}

func (f *Factory) options(extra []Option) []Option {
	all := make([]Option, 0, len(f.defaults)+len(extra))
	all = append(all, f.defaults...)
	return append(all, extra...)
}
