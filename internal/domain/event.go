package domain

import (
	"time"

	"github.com/jsamuelsen/msgflow/internal/messaging"
)

// Event is a message recorded in the outbox while processing another message.
// It carries the correlation data of the unit of work that recorded it.
type Event struct {
	// Sequence orders events by the time their unit of work committed.
	Sequence int64

	// MessageID is the id of the recorded message. It is unique in the outbox.
	MessageID string

	// Name is the message name.
	Name string

	// Payload is the JSON encoded message body.
	Payload []byte

	// MetaData holds the message metadata, correlation entries included.
	MetaData map[string]any

	// RecordedAt is when the event was appended.
	RecordedAt time.Time
}

// CorrelationID returns the correlation entry of the event's metadata.
func (e Event) CorrelationID() string {
	id, _ := e.MetaData[messaging.KeyCorrelationID].(string)
	return id
}
