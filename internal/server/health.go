package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/piper"
	"github.com/kode4food/piper/pkg/api"
)

// UpstreamChecker periodically probes the flow-execution service and
// caches its availability for health reporting
type UpstreamChecker struct {
	ctx       context.Context
	cancel    context.CancelFunc
	client    *http.Client
	healthURL string
	status    string
	mu        sync.RWMutex
}

const (
	healthCheckTimeout  = 3 * time.Second
	healthCheckInterval = 30 * time.Second
	httpErrorThreshold  = 400

	UpstreamHealthy   = "healthy"
	UpstreamUnhealthy = "unhealthy"
	UpstreamUnknown   = "unknown"
)

// NewUpstreamChecker creates a checker that monitors the upstream health
// endpoint derived from the configured base URL
func NewUpstreamChecker(baseURL string) *UpstreamChecker {
	ctx, cancel := context.WithCancel(context.Background())
	return &UpstreamChecker{
		ctx:       ctx,
		cancel:    cancel,
		healthURL: baseURL + "/health",
		status:    UpstreamUnknown,
		client: &http.Client{
			Timeout: healthCheckTimeout,
		},
	}
}

func (u *UpstreamChecker) Start() {
	go u.checkLoop()
}

func (u *UpstreamChecker) Stop() {
	u.cancel()
}

// Status returns the most recently observed upstream availability
func (u *UpstreamChecker) Status() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.status
}

func (u *UpstreamChecker) checkLoop() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	u.check()

	for {
		select {
		case <-u.ctx.Done():
			return
		case <-ticker.C:
			u.check()
		}
	}
}

func (u *UpstreamChecker) check() {
	status := UpstreamHealthy

	req, err := http.NewRequestWithContext(
		u.ctx, http.MethodGet, u.healthURL, nil,
	)
	if err != nil {
		u.setStatus(UpstreamUnhealthy)
		return
	}

	resp, err := u.client.Do(req)
	if err != nil {
		u.setStatus(UpstreamUnhealthy)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= httpErrorThreshold {
		status = UpstreamUnhealthy
	}
	u.setStatus(status)
}

func (u *UpstreamChecker) setStatus(status string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = status
}

func (s *Server) handleHealth(c *gin.Context) {
	res := api.HealthResponse{
		Service: piper.Name,
		Version: piper.Version,
		Status:  UpstreamHealthy,
	}
	if s.upstream != nil {
		res.Upstream = s.upstream.Status()
	}
	c.JSON(http.StatusOK, res)
}
