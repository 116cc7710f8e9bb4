package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/piper/internal/relay"
	"github.com/kode4food/piper/pkg/api"
	"github.com/kode4food/piper/pkg/log"
)

// Client represents a WebSocket client connection for event streaming.
// A client subscribes to one stream session at a time; subscribing again
// replaces the previous subscription.
type Client struct {
	server    *Server
	relay     *relay.Relay
	conn      *websocket.Conn
	consumer  topic.Consumer[*api.StreamEvent]
	closed    chan struct{}
	closeOnce sync.Once
}

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 512
	wsBufferSize       = 1024
	incomingBufferSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed",
			log.Error(err))
		return
	}

	client := &Client{
		server: s,
		relay:  s.relay,
		conn:   conn,
		closed: make(chan struct{}),
	}
	s.registerWebSocket(client)

	go client.run()
}

// Close terminates the connection; the client's run loop then cleans up
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	_ = c.conn.Close()
}

func (c *Client) run() {
	defer func() {
		c.server.unregisterWebSocket(c)
		c.dropSubscription()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan []byte, incomingBufferSize)
	go c.readMessages(incoming)

	for {
		select {
		case <-c.closed:
			return

		case message, ok := <-incoming:
			if !ok {
				return
			}
			c.handleSubscribe(message)

		case event, ok := <-c.receive():
			if !ok {
				c.dropSubscription()
				continue
			}
			if !c.sendEvent(event) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

// receive returns the active subscription channel, or nil when there is
// no subscription so the select arm stays quiet
func (c *Client) receive() <-chan *api.StreamEvent {
	if c.consumer == nil {
		return nil
	}
	return c.consumer.Receive()
}

func (c *Client) readMessages(incoming chan []byte) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			close(incoming)
			return
		}
		incoming <- message
	}
}

func (c *Client) handleSubscribe(message []byte) {
	var sub api.SubscribeRequest
	if err := json.Unmarshal(message, &sub); err != nil {
		c.server.logger.Error("Failed to parse WebSocket message",
			log.Error(err))
		return
	}

	if sub.Type != "subscribe" {
		return
	}

	cons, err := c.relay.Subscribe(sub.SessionID)
	if err != nil {
		c.server.logger.Warn("WebSocket subscription rejected",
			log.SessionID(sub.SessionID),
			log.Error(err))
		c.sendJSON(api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}

	c.dropSubscription()
	c.consumer = cons

	c.sendJSON(api.SubscribedResult{
		Type:      "subscribed",
		SessionID: sub.SessionID,
	})
}

func (c *Client) dropSubscription() {
	if c.consumer != nil {
		c.consumer.Close()
		c.consumer = nil
	}
}

func (c *Client) sendEvent(ev *api.StreamEvent) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		c.server.logger.Error("WebSocket write failed",
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendJSON(v any) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		c.server.logger.Error("WebSocket write failed",
			log.Error(err))
	}
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}
