package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	app "github.com/kode4food/piper"
	"github.com/kode4food/piper/internal/client"
	"github.com/kode4food/piper/internal/config"
	"github.com/kode4food/piper/internal/relay"
	"github.com/kode4food/piper/internal/server"
	"github.com/kode4food/piper/internal/stream"
	"github.com/kode4food/piper/pkg/log"
)

type piper struct {
	cfg        *config.Config
	flowClient client.Client
	relay      *relay.Relay
	upstream   *server.UpstreamChecker
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &piper{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *piper) run() error {
	s.initializeRelay()
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *piper) setupLogging() {
	level := log.Level(s.cfg.LogLevel)

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Piper starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("langflow_base_url", s.cfg.Langflow.BaseURL),
		slog.Bool("langflow_token_set", s.cfg.Langflow.Token != ""),
		slog.Duration("run_timeout", s.cfg.RunTimeout),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *piper) initializeRelay() {
	logger := slog.Default()
	s.flowClient = client.NewHTTPClient(
		&s.cfg.Langflow, s.cfg.RunTimeout, logger,
	)
	s.relay = relay.New(
		s.flowClient, stream.NewAttacher(logger), logger,
	)
}

func (s *piper) startServer() {
	s.upstream = server.NewUpstreamChecker(s.cfg.Langflow.BaseURL)
	s.upstream.Start()

	s.apiServer = server.NewServer(s.relay, s.cfg, slog.Default())
	s.apiServer.SetUpstreamChecker(s.upstream)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *piper) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()
	s.upstream.Stop()

	if err := s.relay.Shutdown(ctx); err != nil {
		slog.Error("Relay shutdown failed", log.Error(err))
	}

	slog.Info("Server exited")
}
