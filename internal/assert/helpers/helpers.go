package helpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kode4food/piper/internal/config"
	"github.com/kode4food/piper/internal/relay"
	"github.com/kode4food/piper/internal/stream"
	"github.com/kode4food/piper/pkg/api"
	"github.com/kode4food/piper/pkg/log"
)

// TestRelayEnv holds the components needed for relay and server testing
type TestRelayEnv struct {
	Relay      *relay.Relay
	MockClient *MockClient
	Config     *config.Config
}

// NewTestConfig creates a basic configuration for testing
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	return cfg
}

// NewTestRequest creates a valid streaming flow request for testing
func NewTestRequest(flowID api.FlowID) *api.FlowRequest {
	return &api.FlowRequest{
		FlowID:      flowID,
		FlowGroupID: "test-group",
		InputValue:  "hello",
		Stream:      true,
	}
}

// NewTestRelay creates a relay backed by a mock flow client
func NewTestRelay(t *testing.T) *TestRelayEnv {
	t.Helper()

	logger := log.NewWithLevel(
		"relay-test", "test", "0.0.0", log.Level("debug"),
	)
	mockCli := NewMockClient()
	return &TestRelayEnv{
		Relay:      relay.New(mockCli, stream.NewAttacher(logger), logger),
		MockClient: mockCli,
		Config:     NewTestConfig(),
	}
}

// NewStreamBackend starts an HTTP test server that serves the given SSE
// frames on every request and returns the server plus a flow response
// body advertising its stream URL
func NewStreamBackend(t *testing.T, frames ...string) (
	*httptest.Server, string,
) {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher, ok := w.(http.Flusher)
			if !ok {
				t.Error("response writer does not support flushing")
				return
			}
			for _, f := range frames {
				_, _ = w.Write([]byte(f))
				flusher.Flush()
			}
		},
	))
	t.Cleanup(backend.Close)

	body := fmt.Sprintf(
		`{"outputs":[{"outputs":[{"artifacts":{"streamUrl":%q}}]}]}`,
		backend.URL,
	)
	return backend, body
}
