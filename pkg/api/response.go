package api

import (
	"errors"
	"slices"

	"github.com/tidwall/gjson"
)

// FlowResponse wraps the body returned by the flow-execution service.
// The shape is treated as opaque; every nested field is optional and
// accessors return the zero value when a path is absent. Marshaling
// reproduces the original body byte for byte
type FlowResponse struct {
	raw []byte
}

// Paths inspected inside a flow response. Only the first element of
// each nesting level is ever consulted
const (
	streamURLPath      = "outputs.0.outputs.0.artifacts.streamUrl"
	streamURLSnakePath = "outputs.0.outputs.0.artifacts.stream_url"
	messageTextPath    = "outputs.0.outputs.0.outputs.message.message.text"
	resultsTextPath    = "outputs.0.outputs.0.results.message.text"
)

var ErrInvalidResponseBody = errors.New("invalid response body")

// ParseFlowResponse validates and wraps a raw response body
func ParseFlowResponse(body []byte) (*FlowResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidResponseBody
	}
	return &FlowResponse{raw: slices.Clone(body)}, nil
}

// Raw returns the original response body
func (r *FlowResponse) Raw() []byte {
	return r.raw
}

// StreamURL returns the stream URL embedded in the response, or the
// empty string when none is present. Both the camelCase and snake_case
// artifact keys are accepted
func (r *FlowResponse) StreamURL() string {
	res := gjson.GetBytes(r.raw, streamURLPath)
	if !res.Exists() {
		res = gjson.GetBytes(r.raw, streamURLSnakePath)
	}
	return res.String()
}

// MessageText returns the chat message text from the first output, or
// the empty string when none is present
func (r *FlowResponse) MessageText() string {
	res := gjson.GetBytes(r.raw, messageTextPath)
	if !res.Exists() {
		res = gjson.GetBytes(r.raw, resultsTextPath)
	}
	return res.String()
}

func (r *FlowResponse) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("null"), nil
	}
	return r.raw, nil
}

func (r *FlowResponse) UnmarshalJSON(data []byte) error {
	r.raw = slices.Clone(data)
	return nil
}
