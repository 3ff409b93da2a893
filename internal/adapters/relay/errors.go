// Package relay forwards committed events to an HTTP webhook.
//
// A Relay subscribes to the event bus like any other handler, so it only sees
// events whose unit of work committed. Each event is POSTed as JSON with
// retry, exponential backoff and a circuit breaker. Delivery failures are
// reported to the bus, which logs them without failing the publisher.
package relay

import "errors"

var (
	// ErrCircuitOpen is returned when the breaker rejects a delivery.
	ErrCircuitOpen = errors.New("relay circuit open")

	// ErrMaxRetriesExceeded wraps the last error once every attempt failed.
	ErrMaxRetriesExceeded = errors.New("relay max retries exceeded")

	// ErrRejected is returned when the webhook answers with a 4xx status.
	// Rejected deliveries are not retried.
	ErrRejected = errors.New("relay delivery rejected")
)
