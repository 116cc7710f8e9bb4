// Package api defines the core data types for the chat gateway
//
// This package contains the shared types used across the gateway,
// including flow requests, the loosely-typed Langflow response wrapper,
// stream events, session digests, and HTTP messages
package api
