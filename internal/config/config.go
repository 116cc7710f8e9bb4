package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type (
	// Config holds configuration settings for the relay service
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Langflow upstream
		Langflow LangflowConfig

		// Timeouts
		RunTimeout      time.Duration
		ShutdownTimeout time.Duration
	}

	// LangflowConfig describes the upstream flow-execution endpoint
	LangflowConfig struct {
		BaseURL string
		Token   string
	}
)

const (
	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultLangflowBaseURL = "http://localhost:7860"

	DefaultRunTimeout      = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	MaxRunTimeout = 24 * time.Hour
)

var (
	ErrInvalidAPIPort    = errors.New("invalid API port")
	ErrBaseURLRequired   = errors.New("langflow base URL is required")
	ErrInvalidBaseURL    = errors.New("invalid langflow base URL")
	ErrInvalidRunTimeout = errors.New("run timeout must be positive")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// server and the Langflow upstream
func NewDefaultConfig() *Config {
	return &Config{
		APIHost: DefaultAPIHost,
		APIPort: DefaultAPIPort,
		Langflow: LangflowConfig{
			BaseURL: DefaultLangflowBaseURL,
		},
		RunTimeout:      DefaultRunTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        "info",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if baseURL := os.Getenv("LANGFLOW_BASE_URL"); baseURL != "" {
		c.Langflow.BaseURL = baseURL
	}
	if token := os.Getenv("LANGFLOW_TOKEN"); token != "" {
		c.Langflow.Token = token
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}

	if err := loadEnvDuration(
		"RUN_TIMEOUT", &c.RunTimeout, MaxRunTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout, MaxRunTimeout,
	); err != nil {
		return err
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.Langflow.BaseURL == "" {
		return ErrBaseURLRequired
	}

	u, err := url.Parse(c.Langflow.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidBaseURL, c.Langflow.BaseURL)
	}

	if c.RunTimeout <= 0 {
		return ErrInvalidRunTimeout
	}

	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

// loadEnvDuration reads key from the environment and parses it as a Go
// duration string (e.g. "30s", "2m")
func loadEnvDuration(key string, dst *time.Duration, max time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	if d <= 0 || d > max {
		return fmt.Errorf("invalid %s: %s out of range", key, d)
	}
	*dst = d
	return nil
}
