package api

type (
	// FlowID is the identifier of a flow in the flow-execution service
	FlowID string

	// FlowGroupID is the identifier of the group a flow belongs to. It
	// forms the path segment between the base URL and the run endpoint
	FlowGroupID string

	// SessionID uniquely identifies an active stream session. A session
	// is transient; once it ends the ID is never reused
	SessionID string
)
