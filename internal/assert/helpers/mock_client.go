package helpers

import (
	"context"
	"sync"

	"github.com/kode4food/piper/internal/client"
	"github.com/kode4food/piper/pkg/api"
)

// MockClient is a simple mock implementation of client.Client for testing
type MockClient struct {
	responses map[api.FlowID]*api.FlowResponse
	errors    map[api.FlowID]error
	invoked   []*api.FlowRequest
	mu        sync.Mutex
}

var _ client.Client = (*MockClient)(nil)

// NewMockClient creates a mock flow client that allows setting responses
// and errors for specific flow IDs
func NewMockClient() *MockClient {
	return &MockClient{
		responses: map[api.FlowID]*api.FlowResponse{},
		errors:    map[api.FlowID]error{},
	}
}

// RunFlow records the invocation and returns the configured response or
// error for the requested flow
func (c *MockClient) RunFlow(
	_ context.Context, req *api.FlowRequest,
) (*api.FlowResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invoked = append(c.invoked, req)

	if err, ok := c.errors[req.FlowID]; ok {
		return nil, err
	}
	if resp, ok := c.responses[req.FlowID]; ok {
		return resp, nil
	}
	return api.ParseFlowResponse([]byte(`{"outputs":[]}`))
}

// SetResponse configures the mock to return a specific response body for
// a flow. Panics if the body is not valid JSON.
func (c *MockClient) SetResponse(flowID api.FlowID, body string) {
	resp, err := api.ParseFlowResponse([]byte(body))
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[flowID] = resp
}

// SetError configures the mock to return an error for a flow
func (c *MockClient) SetError(flowID api.FlowID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[flowID] = err
}

// GetInvocations returns the requests the mock has seen so far
func (c *MockClient) GetInvocations() []*api.FlowRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]*api.FlowRequest, len(c.invoked))
	copy(result, c.invoked)
	return result
}

// WasInvoked returns whether a specific flow was invoked
func (c *MockClient) WasInvoked(flowID api.FlowID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, req := range c.invoked {
		if req.FlowID == flowID {
			return true
		}
	}
	return false
}
