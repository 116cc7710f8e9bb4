package server

import (
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/kode4food/piper/internal/config"
	"github.com/kode4food/piper/internal/relay"
)

// Server implements the HTTP API for the relay service
type Server struct {
	relay    *relay.Relay
	cfg      *config.Config
	logger   *slog.Logger
	upstream *UpstreamChecker
	sockets  map[*Client]struct{}
	mu       sync.Mutex
}

// NewServer creates a new HTTP API server over the given relay
func NewServer(r *relay.Relay, cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		relay:   r,
		cfg:     cfg,
		logger:  logger,
		sockets: map[*Client]struct{}{},
	}
}

// SetUpstreamChecker attaches an upstream availability probe whose status
// is reported by the health endpoint
func (s *Server) SetUpstreamChecker(u *UpstreamChecker) {
	s.upstream = u
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return s.logger
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, DELETE, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		// Chat endpoint
		api.POST("/chat", s.handleChat)

		// Session endpoints
		api.GET("/session", s.listSessions)
		api.GET("/session/:sessionID", s.getSession)
		api.GET("/session/:sessionID/events", s.handleSessionEvents)
		api.DELETE("/session/:sessionID", s.closeSession)
	}

	// WebSocket
	router.GET("/ws", s.handleWebSocket)

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets[c] = struct{}{}
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, c)
}

// CloseWebSockets closes all active WebSocket connections.
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
