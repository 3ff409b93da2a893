// Package messaging defines the message envelope processed under a unit of
// work and the correlation metadata that travels from one message to the
// messages created while processing it.
package messaging

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Well-known metadata keys.
const (
	// KeyCorrelationID identifies the message that caused this one.
	KeyCorrelationID = "correlation_id"

	// KeyTraceID identifies the message that started the whole chain.
	KeyTraceID = "trace_id"
)

// MetaData is a set of key/value entries attached to a message.
// Values are expected to be immutable once attached.
type MetaData map[string]any

// Get returns the value stored under key.
func (m MetaData) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// GetString returns the value under key if it is a string, otherwise "".
func (m MetaData) GetString(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// With returns a copy of m with key set to value.
func (m MetaData) With(key string, value any) MetaData {
	out := m.Clone()
	out[key] = value
	return out
}

// Merge returns a copy of m overlaid with other. Entries of other win.
func (m MetaData) Merge(other MetaData) MetaData {
	out := make(MetaData, len(m)+len(other))
	maps.Copy(out, m)
	maps.Copy(out, other)
	return out
}

// Clone returns a shallow copy. The result is never nil.
func (m MetaData) Clone() MetaData {
	out := make(MetaData, len(m))
	maps.Copy(out, m)
	return out
}

// Keys returns the keys in sorted order.
func (m MetaData) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// Message is a command, event or query together with its metadata.
type Message struct {
	// ID uniquely identifies this message instance.
	ID string

	// Name is the payload type, used to route the message to a handler.
	Name string

	// Payload is the message body.
	Payload any

	// MetaData carries correlation and tracing entries.
	MetaData MetaData

	// Timestamp is when the message was created.
	Timestamp time.Time
}

// NewMessage creates a message with a fresh UUID and empty metadata.
func NewMessage(name string, payload any) Message {
	return Message{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		MetaData:  MetaData{},
		Timestamp: time.Now().UTC(),
	}
}

// WithMetaData returns a copy of the message whose metadata is replaced by md.
func (m Message) WithMetaData(md MetaData) Message {
	m.MetaData = md.Clone()
	return m
}

// AndMetaData returns a copy of the message with md merged over its metadata.
func (m Message) AndMetaData(md MetaData) Message {
	m.MetaData = m.MetaData.Merge(md)
	return m
}
