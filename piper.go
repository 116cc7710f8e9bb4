// Package piper is a chat gateway that fronts a Langflow flow-execution
// service. It forwards chat requests to a configured flow, and when the
// flow answers with a stream URL, relays the incremental results to web
// clients over SSE and WebSocket.
package piper

const (
	// Name identifies the service in logs and health responses
	Name = "piper"

	// Version is the service version reported by the health endpoint
	Version = "1.0.0"
)
