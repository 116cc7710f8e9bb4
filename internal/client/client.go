package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kode4food/piper/internal/config"
	"github.com/kode4food/piper/pkg/api"
	"github.com/kode4food/piper/pkg/log"
)

type (
	// Client invokes a flow on the upstream flow-execution service
	Client interface {
		RunFlow(context.Context, *api.FlowRequest) (*api.FlowResponse, error)
	}

	// HTTPClient is the standard Client backed by net/http
	HTTPClient struct {
		logger     *slog.Logger
		httpClient *http.Client
		baseURL    string
		token      string
	}

	// runPayload is the outbound request body expected by the run endpoint
	runPayload struct {
		Tweaks     api.Tweaks `json:"tweaks,omitempty"`
		InputValue string     `json:"input_value"`
		InputType  string     `json:"input_type"`
		OutputType string     `json:"output_type"`
	}

	// RequestError reports a non-success HTTP status from the upstream,
	// carrying the raw response body for diagnostics
	RequestError struct {
		Status     string
		Body       string
		StatusCode int
	}
)

var ErrInvalidRequest = errors.New("invalid flow request")

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a flow client for the configured upstream endpoint
func NewHTTPClient(
	cfg *config.LangflowConfig, timeout time.Duration, logger *slog.Logger,
) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		logger:  logger,
	}
}

// RunFlow posts the flow request to the upstream run endpoint and returns
// its parsed response. Non-2xx statuses are returned as a *RequestError.
func (c *HTTPClient) RunFlow(
	ctx context.Context, req *api.FlowRequest,
) (*api.FlowResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req = req.WithDefaults()

	body, err := json.Marshal(&runPayload{
		InputValue: req.InputValue,
		InputType:  req.InputType,
		OutputType: req.OutputType,
		Tweaks:     req.Tweaks,
	})
	if err != nil {
		return nil, err
	}

	endpoint := c.runURL(req)
	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint, bytes.NewReader(body),
	)
	if err != nil {
		c.logger.Error("Failed to create flow request",
			log.FlowID(req.FlowID),
			log.Error(err))
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Piper/1.0")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	dur := time.Since(start)

	if err != nil {
		c.logger.Error("Flow request failed",
			log.FlowID(req.FlowID),
			slog.Duration("duration", dur),
			log.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("Failed to read flow response",
			log.FlowID(req.FlowID),
			log.Error(err))
		return nil, err
	}

	if resp.StatusCode < http.StatusOK ||
		resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("Flow request rejected",
			log.FlowID(req.FlowID),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(respBody)))
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}

	parsed, err := api.ParseFlowResponse(respBody)
	if err != nil {
		c.logger.Error("Failed to parse flow response",
			log.FlowID(req.FlowID),
			log.Error(err))
		return nil, err
	}

	c.logger.Debug("Flow request completed",
		log.FlowID(req.FlowID),
		slog.Duration("duration", dur))
	return parsed, nil
}

func (c *HTTPClient) runURL(req *api.FlowRequest) string {
	stream := strconv.FormatBool(req.Stream)
	return fmt.Sprintf("%s/lf/%s/api/v1/run/%s?stream=%s",
		c.baseURL,
		url.PathEscape(string(req.FlowGroupID)),
		url.PathEscape(string(req.FlowID)),
		stream)
}

// Error renders the upstream status line followed by the raw body, e.g.
// `404 Not Found - {"detail":"not found"}`
func (e *RequestError) Error() string {
	return fmt.Sprintf("%s - %s", e.Status, e.Body)
}
