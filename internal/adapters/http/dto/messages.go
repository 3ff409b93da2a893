package dto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/messaging"
)

// maxMetaDataEntries bounds the metadata accepted with one message.
const maxMetaDataEntries = 32

// MessageRequest is a message submitted for processing.
type MessageRequest struct {
	// ID optionally fixes the message id. A UUID is generated when empty.
	ID string `json:"id" validate:"omitempty,uuid"`

	// Name routes the message to its handler.
	Name string `json:"name" validate:"required,max=128,messagename"`

	// Payload is handed to the handler as raw JSON.
	Payload json.RawMessage `json:"payload,omitempty"`

	// MetaData is attached to the message before processing.
	MetaData map[string]any `json:"metadata,omitempty"`
}

// Validate implements Validatable.
func (r *MessageRequest) Validate() error {
	if len(r.MetaData) > maxMetaDataEntries {
		return domain.NewValidationError("metadata", fmt.Sprintf("must have at most %d entries", maxMetaDataEntries))
	}
	for key := range r.MetaData {
		if strings.TrimSpace(key) == "" {
			return domain.NewValidationError("metadata", "keys must not be empty")
		}
	}
	return nil
}

// ToMessage builds the message to process. defaults are metadata entries
// taken from the request context; entries sent by the client win.
func (r *MessageRequest) ToMessage(defaults messaging.MetaData) messaging.Message {
	var payload any
	if len(r.Payload) > 0 {
		payload = r.Payload
	}

	msg := messaging.NewMessage(r.Name, payload).
		AndMetaData(defaults).
		AndMetaData(r.MetaData)
	if r.ID != "" {
		msg.ID = r.ID
	}

	return msg
}

// MessageResponse is the outcome of a processed message.
type MessageResponse struct {
	MessageID string `json:"messageId"`
	Name      string `json:"name"`
	Result    any    `json:"result,omitempty"`
}

// BatchRequest submits several independent messages.
type BatchRequest struct {
	Messages []MessageRequest `json:"messages" validate:"required,min=1,max=100,dive"`
}

// Validate implements Validatable.
func (r *BatchRequest) Validate() error {
	seen := make(map[string]struct{}, len(r.Messages))
	for i := range r.Messages {
		if err := r.Messages[i].Validate(); err != nil {
			return err
		}
		if id := r.Messages[i].ID; id != "" {
			if _, dup := seen[id]; dup {
				return domain.NewValidationErrorWithValue(fmt.Sprintf("messages[%d].id", i), "duplicate message id", id)
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

// BatchItem is the outcome of one message of a batch.
type BatchItem struct {
	MessageID string       `json:"messageId"`
	Name      string       `json:"name"`
	Result    any          `json:"result,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// BatchResponse lists batch outcomes in request order.
type BatchResponse struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// EventResponse is an outbox entry.
type EventResponse struct {
	Sequence   int64           `json:"sequence"`
	MessageID  string          `json:"messageId"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	MetaData   map[string]any  `json:"metadata"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// NewEventResponse converts an outbox entry.
func NewEventResponse(e domain.Event) EventResponse {
	md := e.MetaData
	if md == nil {
		md = map[string]any{}
	}
	return EventResponse{
		Sequence:   e.Sequence,
		MessageID:  e.MessageID,
		Name:       e.Name,
		Payload:    json.RawMessage(e.Payload),
		MetaData:   md,
		RecordedAt: e.RecordedAt,
	}
}

// StatsResponse reports delivered event counts by name.
type StatsResponse struct {
	Events map[string]int64 `json:"events"`
}
