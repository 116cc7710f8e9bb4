package api

import "time"

type (
	// ChatResponse is the envelope returned by the chat endpoint. On
	// success Data carries the flow-execution response verbatim, and
	// SessionID is set when a stream session was attached
	ChatResponse struct {
		Data      *FlowResponse `json:"data,omitempty"`
		SessionID SessionID     `json:"session_id,omitempty"`
		Error     string        `json:"error,omitempty"`
		Success   bool          `json:"success"`
	}

	// SessionDigest provides summary information about a stream session
	SessionDigest struct {
		ID        SessionID `json:"id"`
		FlowID    FlowID    `json:"flow_id"`
		State     string    `json:"state"`
		StartedAt time.Time `json:"started_at"`
		Events    int64     `json:"events"`
	}

	// SessionsListResponse contains a list of active session summaries
	SessionsListResponse struct {
		Sessions []*SessionDigest `json:"sessions"`
		Count    int              `json:"count"`
	}

	// SubscribeRequest is sent by WebSocket clients to subscribe to the
	// events of a stream session
	SubscribeRequest struct {
		Type      string    `json:"type"`
		SessionID SessionID `json:"session_id"`
	}

	// SubscribedResult is sent to WebSocket clients when a subscription
	// is accepted
	SubscribedResult struct {
		Type      string    `json:"type"`
		SessionID SessionID `json:"session_id"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service  string `json:"service"`
		Version  string `json:"version"`
		Status   string `json:"status"`
		Upstream string `json:"upstream,omitempty"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)
