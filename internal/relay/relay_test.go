package relay_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/piper/internal/assert/helpers"
	"github.com/kode4food/piper/internal/relay"
	"github.com/kode4food/piper/pkg/api"
)

func collectEvents(
	t *testing.T, r *relay.Relay, id api.SessionID,
) []*api.StreamEvent {
	t.Helper()

	cons, err := r.Subscribe(id)
	require.NoError(t, err)
	defer cons.Close()

	var events []*api.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-cons.Receive():
			if !ok {
				return events
			}
			events = append(events, ev)
			if ev.Terminal() {
				return events
			}
		case <-timeout:
			t.Fatal("timed out collecting stream events")
		}
	}
}

func TestRunWithoutStreaming(t *testing.T) {
	env := helpers.NewTestRelay(t)
	req := helpers.NewTestRequest("flow-1")
	req.Stream = false

	resp, id, err := env.Relay.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Empty(t, id)
	assert.True(t, env.MockClient.WasInvoked("flow-1"))
	assert.Empty(t, env.Relay.Sessions())
}

func TestRunClientError(t *testing.T) {
	env := helpers.NewTestRelay(t)
	boom := errors.New("upstream exploded")
	env.MockClient.SetError("flow-1", boom)

	resp, id, err := env.Relay.Run(
		context.Background(), helpers.NewTestRequest("flow-1"),
	)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, resp)
	assert.Empty(t, id)
}

func TestRunStreamURLMissing(t *testing.T) {
	env := helpers.NewTestRelay(t)
	env.MockClient.SetResponse("flow-1", `{"outputs":[]}`)

	resp, id, err := env.Relay.Run(
		context.Background(), helpers.NewTestRequest("flow-1"),
	)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Empty(t, id)
	assert.Empty(t, env.Relay.Sessions())
}

func TestRunRelaysStreamEvents(t *testing.T) {
	env := helpers.NewTestRelay(t)
	_, body := helpers.NewStreamBackend(t,
		"data: {\"chunk\":\"hel\"}\n\n",
		"data: {\"chunk\":\"lo\"}\n\n",
		"event: close\ndata: {\"reason\":\"finished\"}\n\n",
	)
	env.MockClient.SetResponse("flow-1", body)

	resp, id, err := env.Relay.Run(
		context.Background(), helpers.NewTestRequest("flow-1"),
	)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.NotEmpty(t, id)

	events := collectEvents(t, env.Relay, id)
	require.Len(t, events, 3)

	assert.Equal(t, api.EventTypeStreamUpdate, events[0].Type)
	assert.Equal(t, `{"chunk":"hel"}`, string(events[0].Data))
	assert.Equal(t, api.EventTypeStreamUpdate, events[1].Type)
	assert.Equal(t, `{"chunk":"lo"}`, string(events[1].Data))

	last := events[2]
	assert.Equal(t, api.EventTypeStreamClose, last.Type)
	assert.Equal(t, "finished", last.Reason)
	for _, ev := range events {
		assert.Equal(t, id, ev.SessionID)
		assert.NotZero(t, ev.Timestamp)
	}
}

func TestRunRelaysStreamError(t *testing.T) {
	env := helpers.NewTestRelay(t)
	_, body := helpers.NewStreamBackend(t,
		"event: error\ndata: it broke\n\n",
	)
	env.MockClient.SetResponse("flow-1", body)

	_, id, err := env.Relay.Run(
		context.Background(), helpers.NewTestRequest("flow-1"),
	)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	events := collectEvents(t, env.Relay, id)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, api.EventTypeStreamError, last.Type)
	assert.Contains(t, last.Error, "it broke")
}

func TestLateSubscriberReplaysHistory(t *testing.T) {
	env := helpers.NewTestRelay(t)
	_, body := helpers.NewStreamBackend(t,
		"data: {\"chunk\":\"x\"}\n\n",
		"event: close\n\n",
	)
	env.MockClient.SetResponse("flow-1", body)

	_, id, err := env.Relay.Run(
		context.Background(), helpers.NewTestRequest("flow-1"),
	)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// wait for the session to end before subscribing
	sess, err := env.Relay.Session(id)
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sess.Digest().State == "closed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	events := collectEvents(t, env.Relay, id)
	require.Len(t, events, 2)
	assert.Equal(t, api.EventTypeStreamUpdate, events[0].Type)
	assert.Equal(t, api.EventTypeStreamClose, events[1].Type)
}

func TestCloseSession(t *testing.T) {
	env := helpers.NewTestRelay(t)
	_, body := helpers.NewStreamBackend(t, "event: close\n\n")
	env.MockClient.SetResponse("flow-1", body)

	_, id, err := env.Relay.Run(
		context.Background(), helpers.NewTestRequest("flow-1"),
	)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, env.Relay.CloseSession(id))
	_, err = env.Relay.Session(id)
	assert.ErrorIs(t, err, relay.ErrSessionNotFound)

	err = env.Relay.CloseSession(id)
	assert.ErrorIs(t, err, relay.ErrSessionNotFound)
}

func TestCloseSessionWhileStreaming(t *testing.T) {
	env := helpers.NewTestRelay(t)
	backend := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			_, _ = w.Write([]byte("data: {\"chunk\":\"x\"}\n\n"))
			flusher.Flush()
			<-r.Context().Done()
		},
	))
	t.Cleanup(backend.Close)
	body := fmt.Sprintf(
		`{"outputs":[{"outputs":[{"artifacts":{"streamUrl":%q}}]}]}`,
		backend.URL,
	)
	env.MockClient.SetResponse("flow-1", body)

	var wg sync.WaitGroup
	for range 32 {
		wg.Go(func() {
			_, id, err := env.Relay.Run(
				context.Background(), helpers.NewTestRequest("flow-1"),
			)
			if !assert.NoError(t, err) || !assert.NotEmpty(t, id) {
				return
			}
			assert.NoError(t, env.Relay.CloseSession(id))
		})
	}
	wg.Wait()
	assert.Empty(t, env.Relay.Sessions())
}

func TestSessionDigest(t *testing.T) {
	env := helpers.NewTestRelay(t)
	backend, body := helpers.NewStreamBackend(t) // no frames; stays open
	_ = backend
	env.MockClient.SetResponse("flow-1", body)

	_, id, err := env.Relay.Run(
		context.Background(), helpers.NewTestRequest("flow-1"),
	)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := env.Relay.Session(id)
	require.NoError(t, err)

	digest := sess.Digest()
	assert.Equal(t, id, digest.ID)
	assert.Equal(t, api.FlowID("flow-1"), digest.FlowID)
	assert.NotEmpty(t, digest.State)

	list := env.Relay.Sessions()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
}

func TestShutdownClosesSessions(t *testing.T) {
	env := helpers.NewTestRelay(t)
	_, body := helpers.NewStreamBackend(t,
		"data: {\"chunk\":\"x\"}\n\n",
	)
	env.MockClient.SetResponse("flow-1", body)

	_, id, err := env.Relay.Run(
		context.Background(), helpers.NewTestRequest("flow-1"),
	)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.Relay.Shutdown(ctx))
}
