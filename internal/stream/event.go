// File path: internal/stream/event.go
package stream

import (
	"bytes"
	"encoding/json"
)

// EventType tags a relay event.
type EventType string

const (
	EventChunk   EventType = "chunk"
	EventMessage EventType = "message"
	EventEnd     EventType = "end"
	EventError   EventType = "error"
)

const roleAssistant = "assistant"

// Event is one item of a relay stream. End and Error are terminal.
type Event struct {
	Type           EventType
	Content        string
	Message        string
	ConversationID string
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

type contentPayload struct {
	Type           EventType `json:"type"`
	Content        string    `json:"content"`
	Role           string    `json:"role"`
	ConversationID *string   `json:"conversation_id"`
}

type endPayload struct {
	Type           EventType `json:"type"`
	ConversationID *string   `json:"conversation_id"`
}

type errorPayload struct {
	Type           EventType `json:"type"`
	Message        string    `json:"message"`
	ConversationID *string   `json:"conversation_id"`
}

// MarshalJSON renders the wire shape for the event type. An empty
// conversation id is encoded as null.
func (e Event) MarshalJSON() ([]byte, error) {
	var conv *string
	if e.ConversationID != "" {
		id := e.ConversationID
		conv = &id
	}
	switch e.Type {
	case EventEnd:
		return encode(endPayload{Type: e.Type, ConversationID: conv})
	case EventError:
		return encode(errorPayload{Type: e.Type, Message: e.Message, ConversationID: conv})
	default:
		return encode(contentPayload{Type: e.Type, Content: e.Content, Role: roleAssistant, ConversationID: conv})
	}
}

// encode marshals v without HTML escaping so non-ASCII and markup pass
// through unchanged.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
