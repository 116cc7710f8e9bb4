package server_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/piper/internal/assert/helpers"
	"github.com/kode4food/piper/pkg/api"
)

func dialWebSocket(
	t *testing.T, srv *httptest.Server,
) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketSubscribe(t *testing.T) {
	env := testServer(t)
	_, body := helpers.NewStreamBackend(t,
		"data: {\"chunk\":\"hel\"}\n\n",
		"event: close\ndata: {\"reason\":\"finished\"}\n\n",
	)
	env.MockClient.SetResponse("flow-1", body)

	w := postChat(t, env,
		`{"flowId":"flow-1","flowGroupId":"group-1","stream":true}`,
	)
	var res api.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.SessionID)

	srv := httptest.NewServer(env.Server.SetupRoutes())
	defer srv.Close()

	conn := dialWebSocket(t, srv)
	require.NoError(t, conn.WriteJSON(api.SubscribeRequest{
		Type:      "subscribe",
		SessionID: res.SessionID,
	}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var subscribed api.SubscribedResult
	require.NoError(t, conn.ReadJSON(&subscribed))
	assert.Equal(t, "subscribed", subscribed.Type)
	assert.Equal(t, res.SessionID, subscribed.SessionID)

	var events []*api.StreamEvent
	for {
		var ev api.StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		events = append(events, &ev)
		if ev.Terminal() {
			break
		}
	}

	require.Len(t, events, 2)
	assert.Equal(t, api.EventTypeStreamUpdate, events[0].Type)
	assert.Equal(t, `{"chunk":"hel"}`, string(events[0].Data))
	assert.Equal(t, api.EventTypeStreamClose, events[1].Type)
	assert.Equal(t, "finished", events[1].Reason)
}

func TestWebSocketSubscribeUnknownSession(t *testing.T) {
	env := testServer(t)
	srv := httptest.NewServer(env.Server.SetupRoutes())
	defer srv.Close()

	conn := dialWebSocket(t, srv)
	require.NoError(t, conn.WriteJSON(api.SubscribeRequest{
		Type:      "subscribe",
		SessionID: "no-such-session",
	}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var res api.ErrorResponse
	require.NoError(t, conn.ReadJSON(&res))
	assert.Contains(t, res.Error, "session not found")
}

func TestWebSocketIgnoresOtherMessageTypes(t *testing.T) {
	env := testServer(t)
	srv := httptest.NewServer(env.Server.SetupRoutes())
	defer srv.Close()

	conn := dialWebSocket(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "something-else",
	}))

	// connection stays open; no response is expected
	_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var msg json.RawMessage
	err := conn.ReadJSON(&msg)
	assert.Error(t, err)
}
