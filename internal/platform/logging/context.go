package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type loggerKey struct{}

// fallback is returned by FromContext when ctx carries no logger.
var fallback atomic.Pointer[slog.Logger]

func init() {
	fallback.Store(slog.Default())
}

// SetDefault makes logger the fallback for FromContext and the slog default.
func SetDefault(logger *slog.Logger) {
	fallback.Store(logger)
	slog.SetDefault(logger)
}

// FromContext returns the logger stored in ctx, or the default logger.
// A nil ctx is allowed.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return fallback.Load()
}

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithAttrs returns a copy of ctx whose logger adds attrs to every record.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return WithContext(ctx, FromContext(ctx).With(args...))
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return WithAttrs(ctx, slog.String("request_id", id))
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return WithAttrs(ctx, slog.String("correlation_id", id))
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return WithAttrs(ctx, slog.String("trace_id", id))
}

type messageKey struct{}

// messageScope remembers the logger a message tag was applied to, so a
// nested message can replace the tag instead of repeating it.
type messageScope struct {
	id       string
	untagged *slog.Logger
	tagged   *slog.Logger
}

// WithMessage tags records with the message a unit of work is processing.
// Inside another message's scope the outer message_id and message_name are
// replaced and the outer id is kept as parent_message_id.
func WithMessage(ctx context.Context, id, name string) context.Context {
	base := FromContext(ctx)
	attrs := []any{slog.String("message_id", id), slog.String("message_name", name)}

	if outer, ok := ctx.Value(messageKey{}).(*messageScope); ok {
		if base == outer.tagged {
			base = outer.untagged
		}
		attrs = append(attrs, slog.String("parent_message_id", outer.id))
	}

	scope := &messageScope{id: id, untagged: base, tagged: base.With(attrs...)}
	ctx = context.WithValue(ctx, messageKey{}, scope)
	return WithContext(ctx, scope.tagged)
}
