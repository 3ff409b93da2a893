package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/platform/logging"
	"github.com/jsamuelsen/msgflow/internal/platform/telemetry"
	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

// ProcessingStep names the stage in which processing a message failed.
type ProcessingStep string

const (
	StepRoute    ProcessingStep = "route"
	StepStart    ProcessingStep = "start"
	StepHandle   ProcessingStep = "handle"
	StepComplete ProcessingStep = "complete"
)

// ProcessingError wraps a failure with the step where it occurred.
type ProcessingError struct {
	Step        ProcessingStep
	MessageID   string
	MessageName string
	Cause       error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.MessageName, e.Step, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// StepOf returns the step err failed in, or "" when err is not a
// ProcessingError.
func StepOf(err error) ProcessingStep {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Step
	}
	return ""
}

// Processor runs each message through its handler inside a unit of work.
type Processor struct {
	dispatcher *Dispatcher
	factory    *unitofwork.Factory
	timeout    time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithTimeout bounds the processing of a single message. Zero disables it.
func WithTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.timeout = d
	}
}

// NewProcessor creates a processor routing through dispatcher. A nil factory
// creates units of work with default options.
func NewProcessor(dispatcher *Dispatcher, factory *unitofwork.Factory, opts ...ProcessorOption) *Processor {
	if factory == nil {
		factory = unitofwork.NewFactory()
	}

	p := &Processor{dispatcher: dispatcher, factory: factory}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Dispatcher returns the processor's handler registry.
func (p *Processor) Dispatcher() *Dispatcher {
	return p.dispatcher
}

// Process handles msg in a new unit of work. When ctx already carries an
// active unit, the new unit is nested under it. The handler's result is
// returned once the unit has committed.
func (p *Processor) Process(ctx context.Context, msg messaging.Message) (any, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "process "+msg.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("message.id", msg.ID),
			attribute.String("message.name", msg.Name),
		),
	)
	defer span.End()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.process(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (p *Processor) process(ctx context.Context, msg messaging.Message) (any, error) {
	handler, err := p.dispatcher.Handler(msg.Name)
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "no handler for message",
			slog.String("message_id", msg.ID),
			slog.String("message_name", msg.Name),
		)
		return nil, &ProcessingError{Step: StepRoute, MessageID: msg.ID, MessageName: msg.Name, Cause: err}
	}

	u := p.factory.Create(ctx, msg)
	logger := u.Logger()
	start := time.Now()

	logger.DebugContext(ctx, "processing message")

	result, err := unitofwork.ExecuteWithResult(u, func(ctx context.Context) (any, error) {
		return handler.Handle(ctx, msg)
	})

	attrs := []any{
		slog.Duration("duration", time.Since(start)),
		slog.String("phase", u.Phase().String()),
		slog.Int("depth", u.Depth()),
	}

	if err != nil {
		step := StepComplete
		if r, ok := u.ExecutionResult(); ok && r.IsExceptional() {
			step = StepHandle
		} else if u.Phase() == unitofwork.PhaseNotStarted {
			step = StepStart
		}

		logger.WarnContext(ctx, "message processing failed",
			append(attrs,
				slog.String("step", string(step)),
				slog.Bool("rolled_back", u.IsRolledBack()),
				slog.Any("error", err),
			)...,
		)

		return nil, &ProcessingError{Step: step, MessageID: msg.ID, MessageName: msg.Name, Cause: err}
	}

	logger.InfoContext(ctx, "message processed", attrs...)

	return result, nil
}
