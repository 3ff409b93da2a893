package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/msgflow/internal/adapters/http/middleware"
	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/platform/config"
	"github.com/jsamuelsen/msgflow/internal/platform/logging"
	"github.com/jsamuelsen/msgflow/internal/ports"
)

const (
	instrumentationName = "github.com/jsamuelsen/msgflow/internal/adapters/relay"

	// HeaderMessageID carries the event id so the receiver can deduplicate
	// redelivered events.
	HeaderMessageID = "X-Message-ID"

	// HeaderMessageName carries the event name.
	HeaderMessageName = "X-Message-Name"

	defaultTimeout = 5 * time.Second

	// backoffJitter spreads retries by up to 25% either way.
	backoffJitter = 0.25

	transportMaxIdleConns        = 20
	transportMaxIdleConnsPerHost = 10
	transportIdleConnTimeout     = 90 * time.Second

	// responseDrainLimit bounds how much of a response body is read before
	// the connection is reused.
	responseDrainLimit = 4 << 10
)

// Config configures a Relay.
type Config struct {
	// URL receives one POST per event.
	URL string

	// Timeout bounds each attempt. Retries and backoff come on top of it.
	Timeout time.Duration

	Retry   config.RetryConfig
	Circuit config.CircuitConfig

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// envelope is the JSON body POSTed for an event.
type envelope struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Payload   any                `json:"payload"`
	MetaData  messaging.MetaData `json:"metadata"`
	Timestamp time.Time          `json:"timestamp"`
}

// Relay is a ports.MessageHandler that forwards events to a webhook.
// It also reports its circuit state as an optional health check.
type Relay struct {
	http    *http.Client
	url     string
	retry   config.RetryConfig
	breaker *Breaker

	tracer     trace.Tracer
	duration   metric.Float64Histogram
	deliveries metric.Int64Counter
}

var (
	_ ports.MessageHandler  = (*Relay)(nil)
	_ ports.OptionalChecker = (*Relay)(nil)
)

// New creates a relay for cfg.URL.
func New(cfg Config) (*Relay, error) {
	if cfg.URL == "" {
		return nil, errors.New("relay url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry.Multiplier = 1
	}
	if cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		cfg.Retry.MaxInterval = cfg.Retry.InitialInterval
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        transportMaxIdleConns,
			MaxIdleConnsPerHost: transportMaxIdleConnsPerHost,
			IdleConnTimeout:     transportIdleConnTimeout,
		}
	}

	meter := otel.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"msgflow.relay.delivery.duration",
		metric.WithDescription("Duration of event deliveries to the webhook, retries included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration metric: %w", err)
	}

	deliveries, err := meter.Int64Counter(
		"msgflow.relay.deliveries",
		metric.WithDescription("Event deliveries to the webhook, by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating delivery counter: %w", err)
	}

	breaker := NewBreaker(BreakerConfig{
		MaxFailures:   cfg.Circuit.MaxFailures,
		Timeout:       cfg.Circuit.Timeout,
		HalfOpenLimit: cfg.Circuit.HalfOpenLimit,
	}, func(from, to State) {
		slog.Default().Warn("relay circuit state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return &Relay{
		http:       &http.Client{Timeout: cfg.Timeout, Transport: transport},
		url:        cfg.URL,
		retry:      cfg.Retry,
		breaker:    breaker,
		tracer:     otel.Tracer(instrumentationName),
		duration:   duration,
		deliveries: deliveries,
	}, nil
}

// Name implements ports.HealthChecker.
func (r *Relay) Name() string {
	return "relay"
}

// Optional marks the relay check as non-blocking: an open circuit degrades
// readiness but messages are still accepted.
func (r *Relay) Optional() bool {
	return true
}

// Check reports the relay unhealthy while its circuit is open.
func (r *Relay) Check(context.Context) error {
	if r.breaker.State() == StateOpen {
		return domain.NewUnavailableError("relay", "circuit open")
	}
	return nil
}

// State returns the state of the relay's circuit breaker.
func (r *Relay) State() State {
	return r.breaker.State()
}

// Handle forwards msg to the webhook. It returns nil once the webhook
// answered with a 2xx or 3xx status.
func (r *Relay) Handle(ctx context.Context, msg messaging.Message) (any, error) {
	start := time.Now()
	logger := logging.FromContext(ctx).With(
		slog.String("event_id", msg.ID),
		slog.String("event_name", msg.Name),
	)

	body, err := json.Marshal(envelope{
		ID:        msg.ID,
		Name:      msg.Name,
		Payload:   msg.Payload,
		MetaData:  msg.MetaData,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		r.record(ctx, msg.Name, "encode_error", time.Since(start))
		return nil, fmt.Errorf("encoding event %s: %w", msg.ID, err)
	}

	if err := r.breaker.Allow(); err != nil {
		r.record(ctx, msg.Name, "circuit_open", time.Since(start))
		logger.DebugContext(ctx, "relay skipped, circuit open")
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "relay "+msg.Name,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", msg.ID),
			attribute.String("messaging.destination.name", msg.Name),
		),
	)
	defer span.End()

	status, err := r.deliver(ctx, logger, msg, body)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.breaker.Success()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		r.record(ctx, msg.Name, "delivered", elapsed)
		logger.DebugContext(ctx, "event relayed",
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
		)
		return nil, nil

	case errors.Is(err, ErrRejected):
		r.breaker.Success()
		span.SetStatus(codes.Error, err.Error())
		r.record(ctx, msg.Name, "rejected", elapsed)
		return nil, err

	default:
		r.breaker.Failure()
		span.SetStatus(codes.Error, err.Error())
		r.record(ctx, msg.Name, "failed", elapsed)
		return nil, err
	}
}

// deliver POSTs body until the webhook answers with a non-retryable status
// or the attempts are exhausted.
func (r *Relay) deliver(ctx context.Context, logger *slog.Logger, msg messaging.Message, body []byte) (int, error) {
	var lastErr error

	for attempt := range r.retry.MaxAttempts {
		if attempt > 0 {
			backoff := r.backoff(attempt)
			logger.DebugContext(ctx, "retrying relay",
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.Any("error", lastErr),
			)

			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}
		}

		status, err := r.post(ctx, msg, body)
		if err == nil {
			return status, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return status, err
		}
		lastErr = err
	}

	return 0, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// statusError reports a 5xx or 429 answer.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook answered %d", e.code)
}

func (r *Relay) post(ctx context.Context, msg messaging.Message, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderMessageID, msg.ID)
	req.Header.Set(HeaderMessageName, msg.Name)
	if id := msg.MetaData.GetString(messaging.KeyCorrelationID); id != "" {
		req.Header.Set(middleware.HeaderCorrelationID, id)
	}
	if id := msg.MetaData.GetString(middleware.MetaDataKeyRequestID); id != "" {
		req.Header.Set(middleware.HeaderRequestID, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck // body fully drained below

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseDrainLimit))

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, &statusError{code: resp.StatusCode}
	case resp.StatusCode >= http.StatusBadRequest:
		return resp.StatusCode, fmt.Errorf("%w: webhook answered %d", ErrRejected, resp.StatusCode)
	default:
		return resp.StatusCode, nil
	}
}

// backoff returns the wait before the given attempt: exponential growth from
// the initial interval, capped at the max interval, with jitter.
func (r *Relay) backoff(attempt int) time.Duration {
	d := float64(r.retry.InitialInterval) * math.Pow(r.retry.Multiplier, float64(attempt-1))
	d = min(d, float64(r.retry.MaxInterval))
	d += d * backoffJitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter only

	return time.Duration(d)
}

func (r *Relay) record(ctx context.Context, name, result string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("event_name", name),
		attribute.String("result", result),
	)
	r.duration.Record(ctx, elapsed.Seconds(), attrs)
	r.deliveries.Add(ctx, 1, attrs)
}

// retryable reports whether a failed attempt may succeed when repeated.
// Attempt timeouts are retryable. Cancellation of the caller is checked
// separately.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
