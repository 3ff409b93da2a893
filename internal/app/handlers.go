package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/ports"
	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

// Built-in message names.
const (
	MessagePing   = "ping"
	MessageRecord = "record"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// PingResult is returned by the ping handler.
type PingResult struct {
	Pong          bool   `json:"pong"`
	CorrelationID string `json:"correlation_id"`
	TraceID       string `json:"trace_id"`
}

// PingHandler answers with the correlation data of the unit of work that
// processed the ping.
type PingHandler struct{}

// Handle implements ports.MessageHandler.
func (PingHandler) Handle(ctx context.Context, _ messaging.Message) (any, error) {
	md := unitofwork.CorrelationData(ctx)
	return PingResult{
		Pong:          true,
		CorrelationID: md.GetString(messaging.KeyCorrelationID),
		TraceID:       md.GetString(messaging.KeyTraceID),
	}, nil
}

// EventSpec describes one event to record.
type EventSpec struct {
	Name    string          `json:"name" validate:"required,max=128"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RecordCommand is the payload of a record message.
type RecordCommand struct {
	Events []EventSpec `json:"events" validate:"required,min=1,max=100,dive"`

	// Reject, when set, fails the command after its events were staged.
	Reject string `json:"reject,omitempty" validate:"max=256"`
}

// RecordResult is returned by the record handler.
type RecordResult struct {
	Recorded int      `json:"recorded"`
	EventIDs []string `json:"event_ids"`
}

// RecordHandler appends the events of a record command to the store and
// publishes them. Both take effect only when the unit of work commits.
type RecordHandler struct {
	store     ports.EventStore
	publisher ports.EventPublisher
}

// NewRecordHandler creates a record handler. publisher may be nil.
func NewRecordHandler(store ports.EventStore, publisher ports.EventPublisher) *RecordHandler {
	return &RecordHandler{store: store, publisher: publisher}
}

// Handle implements ports.MessageHandler.
func (h *RecordHandler) Handle(ctx context.Context, msg messaging.Message) (any, error) {
	cmd, err := DecodePayload[RecordCommand](msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(cmd); err != nil {
		return nil, err
	}

	correlation := unitofwork.CorrelationData(ctx)

	events := make([]messaging.Message, len(cmd.Events))
	ids := make([]string, len(cmd.Events))
	for i, ev := range cmd.Events {
		events[i] = messaging.NewMessage(ev.Name, ev.Payload).AndMetaData(correlation)
		ids[i] = events[i].ID
	}

	if err := h.store.Append(ctx, events...); err != nil {
		return nil, fmt.Errorf("appending events: %w", err)
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, events...); err != nil {
			return nil, fmt.Errorf("publishing events: %w", err)
		}
	}

	if cmd.Reject != "" {
		return nil, domain.NewValidationError("reject", cmd.Reject)
	}

	return RecordResult{Recorded: len(events), EventIDs: ids}, nil
}

// DecodePayload converts a message payload to T. Payloads that are already a
// T are returned as is, raw JSON is decoded, and anything else is converted
// through its JSON encoding.
func DecodePayload[T any](payload any) (T, error) {
	var out T

	var raw []byte
	switch p := payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
		return out, domain.NewValidationError("payload", "must not be empty")
	case nil:
		return out, domain.NewValidationError("payload", "must not be empty")
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return out, domain.NewValidationError("payload", err.Error())
		}
		raw = b
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, domain.NewValidationError("payload", err.Error())
	}
	return out, nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		fe := errs[0]
		return domain.NewValidationErrorWithValue(fe.Namespace(), "failed on "+fe.Tag(), fe.Value())
	}
	return domain.NewValidationError("payload", err.Error())
}

// RegisterBuiltins registers the ping and record handlers.
func RegisterBuiltins(d *Dispatcher, store ports.EventStore, publisher ports.EventPublisher) error {
	return errors.Join(
		d.Register(MessagePing, PingHandler{}),
		d.Register(MessageRecord, NewRecordHandler(store, publisher)),
	)
}
