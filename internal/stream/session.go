package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kode4food/piper/pkg/log"
)

type (
	// State describes the lifecycle of a stream session
	State string

	// Callbacks receive the events of a stream session. OnUpdate fires
	// once per incremental result, in arrival order. Exactly one of
	// OnClose or OnError fires once the session ends, never both
	Callbacks struct {
		OnUpdate func(json.RawMessage)
		OnClose  func(reason string)
		OnError  func(err error)
	}

	// Attacher opens stream sessions against event-stream URLs
	Attacher struct {
		logger     *slog.Logger
		httpClient *http.Client
	}

	// Session is one attached event stream. Its state only moves forward:
	// Connecting to Open, then to exactly one of Closed or Failed
	Session struct {
		logger    *slog.Logger
		callbacks *Callbacks
		cancel    context.CancelFunc
		done      chan struct{}
		url       string
		startedAt time.Time
		events    atomic.Int64
		mu        sync.Mutex
		state     State
		closing   bool
	}
)

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
	StateFailed     State = "failed"

	// CloseReasonRequested is reported when the session owner closes the
	// stream before the upstream does
	CloseReasonRequested = "session closed"

	// CloseReasonComplete is reported when the upstream ends the stream
	// without naming a reason
	CloseReasonComplete = "stream complete"

	doneSentinel = "[DONE]"
)

var (
	ErrNoCallbacks       = errors.New("stream callbacks are required")
	ErrStreamURLRequired = errors.New("stream URL is required")
	ErrUnexpectedStatus  = errors.New("unexpected stream status")
	ErrStreamInterrupted = errors.New("stream ended without close event")
)

// NewAttacher creates an Attacher whose sessions use the given per-read
// HTTP client settings
func NewAttacher(logger *slog.Logger) *Attacher {
	return &Attacher{
		// No overall timeout; streams are long-lived and are torn down
		// via the session context
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Attach opens a session against the given event-stream URL. The returned
// Session is in the Connecting state; the connection is established in the
// background and progress is reported through the callbacks. Argument
// errors are returned synchronously and no session is created.
func (a *Attacher) Attach(
	ctx context.Context, streamURL string, cb *Callbacks,
) (*Session, error) {
	if cb == nil || cb.OnUpdate == nil {
		return nil, ErrNoCallbacks
	}
	if streamURL == "" {
		return nil, ErrStreamURLRequired
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		url:       streamURL,
		state:     StateConnecting,
		callbacks: cb,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
		logger:    a.logger,
	}

	go s.run(ctx, a.httpClient)
	return s, nil
}

// State returns the current lifecycle state of the session
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the number of update events delivered so far
func (s *Session) Events() int64 {
	return s.events.Load()
}

// StartedAt returns when the session was attached
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// URL returns the event-stream URL the session is attached to
func (s *Session) URL() string {
	return s.url
}

// Done returns a channel that is closed once the session has reached a
// terminal state and its terminal callback has returned
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close tears down the session. If the stream is still connecting or open
// it ends in the Closed state with OnClose invoked; closing an already
// terminal session is a no-op
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.closing = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) run(ctx context.Context, httpClient *http.Client) {
	defer s.cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, s.url, nil,
	)
	if err != nil {
		s.fail(err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := httpClient.Do(req)
	if err != nil {
		s.endForRead(ctx, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		s.fail(fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status))
		return
	}

	if !s.transition(StateConnecting, StateOpen) {
		return
	}
	s.logger.Debug("Stream opened", log.URL(s.url))

	err = readFrames(resp.Body, s.handleFrame)
	if err != nil {
		s.endForRead(ctx, err)
		return
	}

	// Terminal frame already handled, or the upstream hung up without one
	s.mu.Lock()
	terminal := s.state == StateClosed || s.state == StateFailed
	s.mu.Unlock()
	if !terminal {
		s.fail(ErrStreamInterrupted)
	}
}

func (s *Session) handleFrame(f *frame) error {
	switch f.Event {
	case "close", "end":
		reason := closeReason(f.Data)
		s.finish(reason)
		return errStopReading
	case "error":
		s.fail(fmt.Errorf("stream error: %s", string(f.Data)))
		return errStopReading
	}

	data := f.Data
	if len(data) == 0 {
		return nil
	}
	if string(data) == doneSentinel {
		s.finish(CloseReasonComplete)
		return errStopReading
	}
	if !json.Valid(data) {
		s.logger.Warn("Skipping malformed stream payload",
			log.URL(s.url),
			slog.String("payload", string(data)))
		return nil
	}

	s.events.Add(1)
	s.callbacks.OnUpdate(data)
	return nil
}

// endForRead maps a transport error to the appropriate terminal state. A
// session torn down by its owner or its context reports a clean close.
func (s *Session) endForRead(ctx context.Context, err error) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()

	if closing || ctx.Err() != nil {
		s.finish(CloseReasonRequested)
		return
	}
	s.fail(err)
}

func (s *Session) finish(reason string) {
	if !s.terminate(StateClosed) {
		return
	}
	s.logger.Debug("Stream closed",
		log.URL(s.url),
		slog.String("reason", reason),
		slog.Int64("events", s.events.Load()))
	if s.callbacks.OnClose != nil {
		s.callbacks.OnClose(reason)
	}
	close(s.done)
}

func (s *Session) fail(err error) {
	if !s.terminate(StateFailed) {
		return
	}
	s.logger.Error("Stream failed",
		log.URL(s.url),
		log.Error(err))
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
	close(s.done)
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// terminate moves the session into a terminal state. Returns false if
// the session already ended, guaranteeing a single terminal callback.
// The winner signals done only after its callback has run, so waiters
// never observe a half-finished teardown.
func (s *Session) terminate(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateFailed {
		return false
	}
	s.state = to
	return true
}

func closeReason(data []byte) string {
	if len(data) == 0 {
		return CloseReasonComplete
	}
	var payload struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Reason != "" {
			return payload.Reason
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return string(data)
}
