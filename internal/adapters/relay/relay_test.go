package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/msgflow/internal/adapters/eventbus"
	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/platform/config"
	"github.com/jsamuelsen/msgflow/internal/ports"
	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

func testConfig(url string) Config {
	return Config{
		URL:     url,
		Timeout: 2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		},
		Circuit: config.CircuitConfig{
			MaxFailures:   5,
			Timeout:       time.Minute,
			HalfOpenLimit: 1,
		},
	}
}

func newRelay(t *testing.T, cfg Config) *Relay {
	t.Helper()
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

// statusServer answers the n-th request (starting at 1) with status(n).
func statusServer(t *testing.T, status func(n int32) int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status(calls.Add(1)))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func orderPlaced() messaging.Message {
	msg := messaging.NewMessage("order.placed", map[string]any{"order": "o-1"})
	msg.MetaData = messaging.MetaData{
		messaging.KeyCorrelationID: "cmd-1",
		messaging.KeyTraceID:       "trace-1",
		"request_id":               "req-1",
	}
	return msg
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "relay url is required")
}

func TestRelay_Name(t *testing.T) {
	r := newRelay(t, testConfig("http://hooks.internal"))
	assert.Equal(t, "relay", r.Name())
}

func TestRelay_ForwardsEnvelope(t *testing.T) {
	var (
		header http.Header
		body   envelope
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		header = req.Header.Clone()
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	r := newRelay(t, testConfig(srv.URL))
	msg := orderPlaced()

	result, err := r.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Nil(t, result)

	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, msg.ID, header.Get(HeaderMessageID))
	assert.Equal(t, "order.placed", header.Get(HeaderMessageName))
	assert.Equal(t, "cmd-1", header.Get("X-Correlation-ID"))
	assert.Equal(t, "req-1", header.Get("X-Request-ID"))

	assert.Equal(t, msg.ID, body.ID)
	assert.Equal(t, "order.placed", body.Name)
	assert.Equal(t, map[string]any{"order": "o-1"}, body.Payload)
	assert.Equal(t, "trace-1", body.MetaData.GetString(messaging.KeyTraceID))
	assert.WithinDuration(t, msg.Timestamp, body.Timestamp, time.Millisecond)
}

func TestRelay_RetriesServerErrors(t *testing.T) {
	srv, calls := statusServer(t, func(n int32) int {
		if n < 3 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	})

	r := newRelay(t, testConfig(srv.URL))

	_, err := r.Handle(context.Background(), orderPlaced())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, StateClosed, r.State())
}

func TestRelay_RetriesTooManyRequests(t *testing.T) {
	srv, calls := statusServer(t, func(n int32) int {
		if n == 1 {
			return http.StatusTooManyRequests
		}
		return http.StatusNoContent
	})

	r := newRelay(t, testConfig(srv.URL))

	_, err := r.Handle(context.Background(), orderPlaced())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRelay_RejectionIsNotRetried(t *testing.T) {
	srv, calls := statusServer(t, func(int32) int { return http.StatusUnprocessableEntity })

	r := newRelay(t, testConfig(srv.URL))

	_, err := r.Handle(context.Background(), orderPlaced())
	require.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateClosed, r.State())
}

func TestRelay_MaxRetriesExceeded(t *testing.T) {
	srv, calls := statusServer(t, func(int32) int { return http.StatusBadGateway })

	r := newRelay(t, testConfig(srv.URL))

	_, err := r.Handle(context.Background(), orderPlaced())
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.ErrorContains(t, err, "webhook answered 502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestRelay_CircuitOpens(t *testing.T) {
	srv, calls := statusServer(t, func(int32) int { return http.StatusInternalServerError })

	cfg := testConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.Circuit.MaxFailures = 2
	r := newRelay(t, cfg)

	for range 2 {
		_, err := r.Handle(context.Background(), orderPlaced())
		require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	}
	assert.Equal(t, StateOpen, r.State())

	_, err := r.Handle(context.Background(), orderPlaced())
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the webhook")

	checkErr := r.Check(context.Background())
	require.Error(t, checkErr)
	assert.True(t, domain.IsUnavailable(checkErr))
}

func TestRelay_OpenCircuitDegradesReadiness(t *testing.T) {
	srv, _ := statusServer(t, func(int32) int { return http.StatusBadGateway })

	cfg := testConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.Circuit.MaxFailures = 1
	r := newRelay(t, cfg)

	registry := ports.NewHealthRegistry()
	require.NoError(t, registry.Register(r))

	_, err := r.Handle(context.Background(), orderPlaced())
	require.Error(t, err)

	result := registry.CheckAll(context.Background())
	assert.Equal(t, ports.HealthStatusDegraded, result.Status)
	assert.True(t, result.Checks["relay"].Optional)
}

func TestRelay_CheckHealthyWhenClosed(t *testing.T) {
	r := newRelay(t, testConfig("http://hooks.internal"))
	assert.NoError(t, r.Check(context.Background()))
}

func TestRelay_CancelledDuringBackoff(t *testing.T) {
	srv, calls := statusServer(t, func(int32) int { return http.StatusServiceUnavailable })

	cfg := testConfig(srv.URL)
	cfg.Retry.InitialInterval = time.Hour
	cfg.Retry.MaxInterval = time.Hour
	r := newRelay(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Handle(ctx, orderPlaced())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRelay_UnreachableWebhook(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig("http://" + addr)
	cfg.Retry.MaxAttempts = 2
	r := newRelay(t, cfg)

	_, err = r.Handle(context.Background(), orderPlaced())
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestRelay_Backoff(t *testing.T) {
	r := newRelay(t, Config{
		URL: "http://hooks.internal",
		Retry: config.RetryConfig{
			MaxAttempts:     10,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2,
		},
	})

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{9, time.Second},
	}

	for _, tt := range tests {
		for range 20 {
			got := r.backoff(tt.attempt)
			assert.GreaterOrEqual(t, got, time.Duration(float64(tt.base)*0.75))
			assert.LessOrEqual(t, got, time.Duration(float64(tt.base)*1.25))
		}
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &statusError{code: 503}, true},
		{"connection refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"rejected", ErrRejected, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestRelay_OnlyCommittedEventsAreRelayed(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		ids = append(ids, req.Header.Get(HeaderMessageID))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	factory := unitofwork.NewFactory()
	bus := eventbus.New(factory)
	bus.Subscribe(eventbus.Wildcard, newRelay(t, testConfig(srv.URL)))

	committed := orderPlaced()
	err := factory.Create(context.Background(), messaging.NewMessage("order.place", nil)).
		Execute(func(ctx context.Context) error {
			require.NoError(t, bus.Publish(ctx, committed))

			mu.Lock()
			defer mu.Unlock()
			assert.Empty(t, ids, "events are relayed only after commit")
			return nil
		})
	require.NoError(t, err)

	rejected := orderPlaced()
	err = factory.Create(context.Background(), messaging.NewMessage("order.place", nil)).
		Execute(func(ctx context.Context) error {
			require.NoError(t, bus.Publish(ctx, rejected))
			return errors.New("payment declined")
		})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{committed.ID}, ids)
}
