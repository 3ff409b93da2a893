// Package middleware provides the Gin middleware of the HTTP adapter.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/platform/logging"
)

const (
	// HeaderRequestID identifies one HTTP request.
	HeaderRequestID = "X-Request-ID"

	// HeaderCorrelationID identifies the business transaction a request
	// belongs to. It becomes the trace id of the messages it submits.
	HeaderCorrelationID = "X-Correlation-ID"

	// MetaDataKeyRequestID is the message metadata entry carrying the
	// request id.
	MetaDataKeyRequestID = "request_id"

	// maxIDLength bounds ids accepted from clients.
	maxIDLength = 128
)

type idKey struct{ name string }

var (
	requestIDKey     = idKey{"request_id"}
	correlationIDKey = idKey{"correlation_id"}
)

// idSpec describes one id carried in a header, the gin context and the
// request context.
type idSpec struct {
	header string
	key    idKey
	logAs  func(context.Context, string) context.Context
}

// RequestID takes the request id from X-Request-ID, or generates one, and
// echoes it in the response. The id is added to the request logger and to
// the metadata of submitted messages.
func RequestID() gin.HandlerFunc {
	return idMiddleware(idSpec{header: HeaderRequestID, key: requestIDKey, logAs: logging.WithRequestID})
}

// CorrelationID takes the correlation id from X-Correlation-ID, or starts a
// new transaction, and echoes it in the response. Messages submitted with
// the request use it as their trace id, so every unit of work they run
// reports it in its correlation data.
func CorrelationID() gin.HandlerFunc {
	return idMiddleware(idSpec{header: HeaderCorrelationID, key: correlationIDKey, logAs: logging.WithCorrelationID})
}

func idMiddleware(spec idSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(spec.header)
		if !validID(id) {
			id = uuid.NewString()
		}

		c.Set(spec.key.name, id)
		c.Header(spec.header, id)

		ctx := context.WithValue(c.Request.Context(), spec.key, id)
		c.Request = c.Request.WithContext(spec.logAs(ctx, id))

		c.Next()
	}
}

// validID accepts non-empty printable ASCII ids without spaces. Anything
// else is replaced so that client input never reaches logs or headers
// unchecked.
func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for i := range len(id) {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// RequestIDFromContext returns the request id set by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// CorrelationIDFromContext returns the correlation id set by CorrelationID,
// or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// MetaDataFromContext returns the metadata attached to messages submitted
// over HTTP: the request id, and the correlation id as trace id.
func MetaDataFromContext(ctx context.Context) messaging.MetaData {
	md := messaging.MetaData{}
	if id := RequestIDFromContext(ctx); id != "" {
		md[MetaDataKeyRequestID] = id
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		md[messaging.KeyTraceID] = id
	}
	return md
}
