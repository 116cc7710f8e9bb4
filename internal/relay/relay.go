package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/piper/internal/client"
	"github.com/kode4food/piper/internal/stream"
	"github.com/kode4food/piper/pkg/api"
	"github.com/kode4food/piper/pkg/log"
)

type (
	// Relay composes the flow client and the stream attacher. Run invokes
	// a flow, and when the flow responds with a stream URL the relay
	// attaches to it in the background, fanning events out to whoever
	// subscribes to the session
	Relay struct {
		logger   *slog.Logger
		client   client.Client
		attacher *stream.Attacher
		sessions map[api.SessionID]*Session
		mu       sync.RWMutex
	}

	// Session is the relay's record of one attached stream
	Session struct {
		ID     api.SessionID
		FlowID api.FlowID
		hub    *Hub
		stream *stream.Session
	}
)

var ErrSessionNotFound = errors.New("session not found")

// New creates a Relay over the given flow client and stream attacher
func New(
	cli client.Client, attacher *stream.Attacher, logger *slog.Logger,
) *Relay {
	return &Relay{
		client:   cli,
		attacher: attacher,
		sessions: map[api.SessionID]*Session{},
		logger:   logger,
	}
}

// Run invokes the flow and, for streaming requests, attaches to the
// stream URL the response advertises. The flow response is returned as-is
// either way; the returned SessionID is empty when no stream session was
// started. Streaming proceeds in the background and does not block or
// fail the call.
func (r *Relay) Run(
	ctx context.Context, req *api.FlowRequest,
) (*api.FlowResponse, api.SessionID, error) {
	resp, err := r.client.RunFlow(ctx, req)
	if err != nil {
		return nil, "", err
	}

	if !req.Stream {
		return resp, "", nil
	}

	streamURL := resp.StreamURL()
	if streamURL == "" {
		r.logger.Warn("Streaming requested but no stream URL in response",
			log.FlowID(req.FlowID))
		return resp, "", nil
	}

	id, err := r.attach(req.FlowID, streamURL)
	if err != nil {
		r.logger.Warn("Failed to attach to stream",
			log.FlowID(req.FlowID),
			log.URL(streamURL),
			log.Error(err))
		return resp, "", nil
	}
	return resp, id, nil
}

// CloseSession tears down a stream session and removes it from the
// registry. Closing a session that already ended just removes it. The
// terminal callback owns hub closure; waiting on Done is what makes the
// removal safe.
func (r *Relay) CloseSession(id api.SessionID) error {
	sess, err := r.Session(id)
	if err != nil {
		return err
	}
	if sess.stream != nil {
		sess.stream.Close()
		<-sess.stream.Done()
	}
	r.remove(id)
	return nil
}

// Session returns the record of an active stream session
func (r *Relay) Session(id api.SessionID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Subscribe attaches a consumer to a session's remaining events. The
// caller must Close the consumer when done with it.
func (r *Relay) Subscribe(
	id api.SessionID,
) (topic.Consumer[*api.StreamEvent], error) {
	sess, err := r.Session(id)
	if err != nil {
		return nil, err
	}
	return sess.hub.Subscribe(), nil
}

// Sessions returns digests of all known stream sessions, ordered by ID.
// Sessions that have ended remain listed until explicitly closed.
func (r *Relay) Sessions() []*api.SessionDigest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*api.SessionDigest, 0, len(r.sessions))
	for _, sess := range r.sessions {
		res = append(res, sess.Digest())
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})
	return res
}

// Shutdown closes all active stream sessions and waits for each to reach
// a terminal state or the context to expire
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	active := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		active = append(active, sess)
	}
	r.mu.Unlock()

	for _, sess := range active {
		if sess.stream != nil {
			sess.stream.Close()
		}
	}
	for _, sess := range active {
		if sess.stream == nil {
			continue
		}
		select {
		case <-sess.stream.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Digest summarizes the session for listings
func (s *Session) Digest() *api.SessionDigest {
	res := &api.SessionDigest{
		ID:     s.ID,
		FlowID: s.FlowID,
		State:  string(stream.StateConnecting),
	}
	if s.stream != nil {
		res.State = string(s.stream.State())
		res.StartedAt = s.stream.StartedAt()
		res.Events = s.stream.Events()
	}
	return res
}

func (r *Relay) attach(
	flowID api.FlowID, streamURL string,
) (api.SessionID, error) {
	id := api.SessionID(uuid.NewString())
	sess := &Session{
		ID:     id,
		FlowID: flowID,
		hub:    newHub(),
	}

	// Detached from the request context; the stream outlives the call
	// that started it and is torn down via Shutdown or its own terminal
	// event
	strm, err := r.attacher.Attach(
		context.Background(), streamURL, r.callbacks(sess),
	)
	if err != nil {
		sess.hub.Close()
		return "", err
	}
	sess.stream = strm

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	r.logger.Info("Stream session started",
		log.SessionID(id),
		log.FlowID(flowID),
		log.URL(streamURL))
	return id, nil
}

func (r *Relay) callbacks(sess *Session) *stream.Callbacks {
	return &stream.Callbacks{
		OnUpdate: func(data json.RawMessage) {
			sess.hub.Publish(&api.StreamEvent{
				Type:      api.EventTypeStreamUpdate,
				SessionID: sess.ID,
				Data:      data,
				Timestamp: time.Now().UnixMilli(),
			})
		},
		OnClose: func(reason string) {
			sess.hub.Publish(&api.StreamEvent{
				Type:      api.EventTypeStreamClose,
				SessionID: sess.ID,
				Reason:    reason,
				Timestamp: time.Now().UnixMilli(),
			})
			r.logger.Info("Stream session closed",
				log.SessionID(sess.ID),
				slog.String("reason", reason))
			sess.hub.Close()
		},
		OnError: func(err error) {
			sess.hub.Publish(&api.StreamEvent{
				Type:      api.EventTypeStreamError,
				SessionID: sess.ID,
				Error:     err.Error(),
				Timestamp: time.Now().UnixMilli(),
			})
			r.logger.Error("Stream session failed",
				log.SessionID(sess.ID),
				log.Error(err))
			sess.hub.Close()
		},
	}
}

func (r *Relay) remove(id api.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
