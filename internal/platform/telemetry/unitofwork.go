package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

const (
	metricsNamespace = "msgflow"
	metricsSubsystem = "unit_of_work"

	// startedAtKey holds the start time in the unit's resources. Resources
	// are only cleared after the CLOSED transition has been observed.
	startedAtKey = "telemetry.started_at"

	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
)

// UnitOfWorkMetrics exports unit of work lifecycles as Prometheus metrics.
type UnitOfWorkMetrics struct {
	transitions *prometheus.CounterVec
	completed   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	active      prometheus.Gauge
}

// NewUnitOfWorkMetrics creates the collectors and registers them with reg.
func NewUnitOfWorkMetrics(reg prometheus.Registerer) (*UnitOfWorkMetrics, error) {
	m := &UnitOfWorkMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "phase_transitions_total",
			Help:      "Phase transitions of units of work, by phase entered.",
		}, []string{"phase"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "completed_total",
			Help:      "Units of work that reached CLOSED, by message name and outcome.",
		}, []string{"message_name", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "duration_seconds",
			Help:      "Time from STARTED to CLOSED.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"message_name", "outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active",
			Help:      "Units of work started and not yet closed.",
		}),
	}

	for _, c := range []prometheus.Collector{m.transitions, m.completed, m.duration, m.active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Observe is a unitofwork.PhaseListener.
func (m *UnitOfWorkMetrics) Observe(u *unitofwork.UnitOfWork, _, to unitofwork.Phase) {
	m.transitions.WithLabelValues(to.String()).Inc()

	switch to {
	case unitofwork.PhaseStarted:
		m.active.Inc()
		u.Resources()[startedAtKey] = time.Now()

	case unitofwork.PhaseClosed:
		m.active.Dec()

		outcome := OutcomeCommitted
		if u.IsRolledBack() {
			outcome = OutcomeRolledBack
		}
		name := u.Message().Name

		m.completed.WithLabelValues(name, outcome).Inc()
		if startedAt, ok := unitofwork.Resource[time.Time](u, startedAtKey); ok {
			m.duration.WithLabelValues(name, outcome).Observe(time.Since(startedAt).Seconds())
		}
	}
}

// TraceListener records every phase transition as an event on the span
// carried by the unit's context, and marks the span failed on rollback.
func TraceListener(u *unitofwork.UnitOfWork, from, to unitofwork.Phase) {
	span := trace.SpanFromContext(u.Context())
	if !span.IsRecording() {
		return
	}

	span.AddEvent("unit_of_work."+to.String(), trace.WithAttributes(
		attribute.String("unit_of_work.from", from.String()),
		attribute.Int("unit_of_work.depth", u.Depth()),
	))

	if to != unitofwork.PhaseRollback {
		return
	}

	cause := u.RollbackCause()
	if cause == nil {
		cause = errors.New("rolled back")
	}
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
}
