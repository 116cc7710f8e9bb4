package api

import "encoding/json"

type (
	// EventType identifies the kind of a stream event
	EventType string

	// StreamEvent is one relayed event from an active stream session.
	// Update events carry Data; close events carry Reason; error events
	// carry Error. Events are delivered in transport arrival order
	StreamEvent struct {
		Data      json.RawMessage `json:"data,omitempty"`
		Type      EventType       `json:"type"`
		SessionID SessionID       `json:"session_id"`
		Reason    string          `json:"reason,omitempty"`
		Error     string          `json:"error,omitempty"`
		Timestamp int64           `json:"timestamp"`
	}
)

const (
	// EventTypeStreamUpdate is emitted for each incremental result
	EventTypeStreamUpdate EventType = "stream_update"

	// EventTypeStreamClose is emitted once when the stream ends cleanly
	EventTypeStreamClose EventType = "stream_close"

	// EventTypeStreamError is emitted once when the stream fails
	EventTypeStreamError EventType = "stream_error"
)

// Terminal reports whether an event ends its session. At most one
// terminal event is ever emitted per session
func (e *StreamEvent) Terminal() bool {
	return e.Type == EventTypeStreamClose || e.Type == EventTypeStreamError
}
