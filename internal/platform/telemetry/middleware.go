package telemetry

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader carries the trace id of the request span back to the caller.
const TraceIDHeader = "X-Trace-ID"

type httpInstruments struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	var in httpInstruments
	var err1, err2, err3 error

	in.duration, err1 = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP requests."),
		metric.WithUnit("s"))
	in.requests, err2 = meter.Int64Counter("http.server.request.total",
		metric.WithDescription("HTTP requests served."))
	in.inFlight, err3 = meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("HTTP requests in flight."))

	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}
	return &in, nil
}

// Middleware returns the request tracing chain. otelgin opens the server
// span; the second handler records request metrics on the global meter
// provider and echoes the trace id in TraceIDHeader.
func Middleware(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		otelgin.Middleware(serviceName),
		requestMetrics(otel.Meter(instrumentationName)),
	}
}

// requestMetrics records on meter. When the instruments cannot be created the
// error goes to the otel error handler and only the trace header is set.
func requestMetrics(meter metric.Meter) gin.HandlerFunc {
	in, err := newHTTPInstruments(meter)
	if err != nil {
		otel.Handle(err)
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			c.Header(TraceIDHeader, sc.TraceID().String())
		}

		if in == nil {
			c.Next()
			return
		}

		start := time.Now()
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.HTTPRoute(c.FullPath()),
		}

		in.inFlight.Add(ctx, 1, metric.WithAttributes(attrs...))
		defer in.inFlight.Add(ctx, -1, metric.WithAttributes(attrs...))

		c.Next()

		done := metric.WithAttributes(append(attrs, semconv.HTTPResponseStatusCode(c.Writer.Status()))...)
		in.duration.Record(ctx, time.Since(start).Seconds(), done)
		in.requests.Add(ctx, 1, done)
	}
}
