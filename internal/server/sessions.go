package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/piper/internal/relay"
	"github.com/kode4food/piper/pkg/api"
	"github.com/kode4food/piper/pkg/log"
)

func (s *Server) listSessions(c *gin.Context) {
	sessions := s.relay.Sessions()
	c.JSON(http.StatusOK, api.SessionsListResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

func (s *Server) getSession(c *gin.Context) {
	id := api.SessionID(c.Param("sessionID"))

	sess, err := s.relay.Session(id)
	if err != nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("session not found: %s", id),
			Status: http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, sess.Digest())
}

func (s *Server) closeSession(c *gin.Context) {
	id := api.SessionID(c.Param("sessionID"))

	if err := s.relay.CloseSession(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, relay.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, api.ErrorResponse{
			Error:  err.Error(),
			Status: status,
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// handleSessionEvents relays a session's stream events to the caller as
// server-sent events. The response ends once the session reaches its
// terminal event or the caller disconnects.
func (s *Server) handleSessionEvents(c *gin.Context) {
	id := api.SessionID(c.Param("sessionID"))

	cons, err := s.relay.Subscribe(id)
	if err != nil {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  fmt.Sprintf("session not found: %s", id),
			Status: http.StatusNotFound,
		})
		return
	}
	defer cons.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return

		case ev, ok := <-cons.Receive():
			if !ok {
				return
			}
			if !s.writeEvent(c, ev) {
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}
}

func (s *Server) writeEvent(c *gin.Context, ev *api.StreamEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("Failed to marshal stream event",
			log.SessionID(ev.SessionID),
			log.Error(err))
		return false
	}
	if _, err := fmt.Fprintf(
		c.Writer, "event: %s\ndata: %s\n\n", ev.Type, data,
	); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}
