package dto

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/msgflow/internal/app"
	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/platform/logging"
)

// Gin context keys and the header consulted by GetTraceID.
const (
	traceIDKey      = "trace_id"
	requestIDKey    = "request_id"
	headerRequestID = "X-Request-ID"
)

// MapError maps an error to an HTTP status code and error response.
// Unknown errors are mapped to 500 Internal Server Error with a generic message.
// Processing failures also report the failed step and message id.
func MapError(err error) (int, *ErrorResponse) {
	if err == nil {
		return http.StatusOK, nil
	}

	status, resp := mapError(err)

	var pe *app.ProcessingError
	if errors.As(err, &pe) {
		resp.Error.Step = string(pe.Step)
		resp.Error.MessageID = pe.MessageID
	}

	return status, resp
}

func mapError(err error) (int, *ErrorResponse) {
	switch {
	case errors.Is(err, ErrBinding):
		return http.StatusBadRequest, NewErrorResponse(ErrorCodeBadRequest, err.Error())

	case errors.Is(err, ErrInvalidCursor):
		return http.StatusBadRequest, NewErrorResponseWithDetails(
			ErrorCodeBadRequest,
			"invalid pagination cursor",
			map[string]string{"cursor": "must be a cursor returned by a previous page"},
		)

	case IsValidationError(err):
		return http.StatusBadRequest, NewErrorResponseWithDetails(
			ErrorCodeValidation,
			"request validation failed",
			ValidationErrors(err),
		)

	case domain.IsValidation(err):
		resp := NewErrorResponse(ErrorCodeValidation, err.Error())
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) && validationErr.Field != "" {
			resp.Error.Details = map[string]string{
				validationErr.Field: validationErr.Message,
			}
		}

		return http.StatusBadRequest, resp

	case domain.IsNoHandler(err):
		return http.StatusNotFound, NewErrorResponse(ErrorCodeNoHandler, err.Error())

	case domain.IsConflict(err):
		return http.StatusConflict, NewErrorResponse(ErrorCodeConflict, err.Error())

	case domain.IsUnavailable(err):
		return http.StatusServiceUnavailable, NewErrorResponse(ErrorCodeUnavailable, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, NewErrorResponse(ErrorCodeTimeout, "message processing timed out")

	default:
		// Unknown errors get a generic message to avoid leaking internals
		return http.StatusInternalServerError, NewErrorResponse(
			ErrorCodeInternal,
			"an internal error occurred",
		)
	}
}

// ErrorDetailOf returns the error detail MapError would report for err.
func ErrorDetailOf(err error) *ErrorDetail {
	_, resp := MapError(err)
	if resp == nil {
		return nil
	}
	return &resp.Error
}

// HandleError writes the error response for err, including the trace ID.
// Internal errors are logged with their full message.
func HandleError(c *gin.Context, err error) {
	status, resp := MapError(err)
	resp.TraceID = GetTraceID(c)

	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error("internal error",
			slog.Any("error", err),
			slog.String("trace_id", resp.TraceID),
		)
	}

	c.JSON(status, resp)
}

// RespondWithErrorCode writes an error response with a specific error code.
func RespondWithErrorCode(c *gin.Context, code, message string) {
	c.JSON(HTTPStatusFromCode(code), NewErrorResponse(code, message).WithTraceID(GetTraceID(c)))
}

// AbortWithErrorCode aborts the request chain with a specific error code.
func AbortWithErrorCode(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(HTTPStatusFromCode(code), NewErrorResponse(code, message).WithTraceID(GetTraceID(c)))
}

// GetTraceID returns the id used to correlate an error response with logs:
// the active span's trace id, then a trace or request id stored on the gin
// context, then the request id header.
func GetTraceID(c *gin.Context) string {
	if c.Request != nil {
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.HasTraceID() {
			return sc.TraceID().String()
		}
	}

	if id := c.GetString(traceIDKey); id != "" {
		return id
	}
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}

	if c.Request != nil {
		return c.Request.Header.Get(headerRequestID)
	}

	return ""
}
