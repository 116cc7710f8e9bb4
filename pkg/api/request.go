package api

import "errors"

type (
	// Tweaks carries per-request component overrides, passed through to
	// the flow-execution service without interpretation
	Tweaks map[string]any

	// FlowRequest describes one chat invocation of a flow. It is
	// immutable once decoded; one instance per inbound call
	FlowRequest struct {
		Tweaks      Tweaks      `json:"tweaks,omitempty"`
		FlowID      FlowID      `json:"flowId"`
		FlowGroupID FlowGroupID `json:"flowGroupId"`
		InputValue  string      `json:"inputValue"`
		InputType   string      `json:"inputType,omitempty"`
		OutputType  string      `json:"outputType,omitempty"`
		Stream      bool        `json:"stream,omitempty"`
	}
)

const (
	// DefaultInputType is used when a request omits inputType
	DefaultInputType = "chat"

	// DefaultOutputType is used when a request omits outputType
	DefaultOutputType = "chat"
)

var (
	ErrFlowIDRequired      = errors.New("flow ID is required")
	ErrFlowGroupIDRequired = errors.New("flow group ID is required")
)

// WithDefaults returns a copy of the request with empty optional fields
// filled in
func (r *FlowRequest) WithDefaults() *FlowRequest {
	res := *r
	if res.InputType == "" {
		res.InputType = DefaultInputType
	}
	if res.OutputType == "" {
		res.OutputType = DefaultOutputType
	}
	if res.Tweaks == nil {
		res.Tweaks = Tweaks{}
	}
	return &res
}

// Validate checks that the request identifies a flow to run
func (r *FlowRequest) Validate() error {
	if r.FlowID == "" {
		return ErrFlowIDRequired
	}
	if r.FlowGroupID == "" {
		return ErrFlowGroupIDRequired
	}
	return nil
}
