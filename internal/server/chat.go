package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/piper/pkg/api"
	"github.com/kode4food/piper/pkg/log"
)

// handleChat invokes a flow on behalf of the caller. The flow response is
// wrapped in an envelope: successful runs return success=true with the
// upstream payload verbatim, failed runs return success=false with the
// error text.
func (s *Server) handleChat(c *gin.Context) {
	var req api.FlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ChatResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, api.ChatResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(
		c.Request.Context(), s.cfg.RunTimeout,
	)
	defer cancel()

	resp, sessionID, err := s.relay.Run(ctx, &req)
	if err != nil {
		s.logger.Error("Flow run failed",
			log.FlowID(req.FlowID),
			log.Error(err))
		c.JSON(http.StatusInternalServerError, api.ChatResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, api.ChatResponse{
		Success:   true,
		Data:      resp,
		SessionID: sessionID,
	})
}
