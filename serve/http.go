package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/logging"
	"github.com/weftworks/agentweave/protocol"
	"github.com/weftworks/agentweave/transport"
)

// DefaultReplyWait bounds how long a plain HTTP POST waits for the session's
// next outbound envelope before answering with an empty body. Clients on the
// SSE binding receive outbound envelopes on the event stream instead.
const DefaultReplyWait = 30 * time.Second

// HTTPServerConfig configures the HTTP/SSE listener.
type HTTPServerConfig struct {
	// ReplyWait overrides DefaultReplyWait.
	ReplyWait time.Duration
	Logger    logging.Logger
}

// HTTPServer routes protocol sessions over HTTP. Each session gets its own
// duplex queue pair bridged to a ServerSession. Plain HTTP clients pick up
// outbound envelopes as POST response bodies; SSE clients attach an event
// stream and POST on the back-channel.
type HTTPServer struct {
	registry  *protocol.Registry
	replyWait time.Duration
	logger    logging.Logger

	mu       sync.Mutex
	sessions map[string]*httpSession
}

// NewHTTPServer creates an HTTP server for the registry.
func NewHTTPServer(registry *protocol.Registry, cfg HTTPServerConfig) *HTTPServer {
	if cfg.ReplyWait <= 0 {
		cfg.ReplyWait = DefaultReplyWait
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &HTTPServer{
		registry:  registry,
		replyWait: cfg.ReplyWait,
		logger:    cfg.Logger,
		sessions:  make(map[string]*httpSession),
	}
}

// Router returns the mux with all session routes mounted.
func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/messages", s.handleMessage).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleCloseSession).Methods(http.MethodDelete)
	return r
}

// Shutdown closes every live session.
func (s *HTTPServer) Shutdown() {
	s.mu.Lock()
	sessions := make([]*httpSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*httpSession)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleCreateSession allocates a session, starts its ServerSession loop, and
// returns the session id plus the routes the client should use.
func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := newHTTPSession()
	session := protocol.NewServerSession(sess.channel, s.registry, protocol.WithServerLogger(s.logger))

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	go func() {
		err := session.Serve(context.Background())
		if err != nil {
			s.logger.Warn("session ended with error", "session", sess.id, "error", err)
		}
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		sess.close()
	}()

	s.logger.Info("session created", "session", sess.id)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"session_id": sess.id,
		"messages":   "/sessions/" + sess.id + "/messages",
		"events":     "/sessions/" + sess.id + "/events",
	})
}

// handleMessage delivers one inbound envelope. When the session has no event
// stream attached, the handler waits up to ReplyWait for the session's next
// outbound envelope and returns it in the response body.
func (s *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(mux.Vars(r)["id"])
	if !ok {
		w.WriteHeader(http.StatusGone)
		return
	}

	var msg transport.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "malformed envelope: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := sess.deliver(r.Context(), &msg); err != nil {
		w.WriteHeader(http.StatusGone)
		return
	}

	if sess.hasStream() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	reply, ok := sess.nextOutbound(r.Context(), s.replyWait)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}

// handleEvents attaches a text/event-stream and pushes outbound envelopes
// until the client disconnects or the session closes.
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(mux.Vars(r)["id"])
	if !ok {
		w.WriteHeader(http.StatusGone)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	if !sess.attachStream() {
		http.Error(w, "event stream already attached", http.StatusConflict)
		return
	}
	defer sess.detachStream()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case msg := <-sess.outbound:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("marshal outbound envelope", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-sess.done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *HTTPServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusGone)
		return
	}
	sess.close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) session(id string) (*httpSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// httpSession bridges HTTP handlers to a ServerSession through two queues.
type httpSession struct {
	id       string
	inbound  chan *transport.Message
	outbound chan *transport.Message
	done     chan struct{}

	mu        sync.Mutex
	closed    bool
	streaming bool

	channel *sessionChannel
}

func newHTTPSession() *httpSession {
	sess := &httpSession{
		id:       core.NewID(),
		inbound:  make(chan *transport.Message, 100),
		outbound: make(chan *transport.Message, 100),
		done:     make(chan struct{}),
	}
	sess.channel = &sessionChannel{sess: sess}
	return sess
}

func (s *httpSession) deliver(ctx context.Context, msg *transport.Message) error {
	select {
	case s.inbound <- msg:
		return nil
	case <-s.done:
		return core.Errorf(core.ErrTransportClosed, "session closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *httpSession) nextOutbound(ctx context.Context, wait time.Duration) (*transport.Message, bool) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case msg := <-s.outbound:
		return msg, true
	case <-timer.C:
		return nil, false
	case <-s.done:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

func (s *httpSession) attachStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return false
	}
	s.streaming = true
	return true
}

func (s *httpSession) detachStream() {
	s.mu.Lock()
	s.streaming = false
	s.mu.Unlock()
}

func (s *httpSession) hasStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *httpSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// sessionChannel is the transport.Channel the ServerSession drives; its Send
// and Receive are the server-side mirror of the HTTP client bindings.
type sessionChannel struct {
	sess *httpSession
}

func (c *sessionChannel) Send(ctx context.Context, msg *transport.Message) error {
	select {
	case c.sess.outbound <- msg:
		return nil
	case <-c.sess.done:
		return core.Errorf(core.ErrTransportClosed, "session closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *sessionChannel) Receive(ctx context.Context) (*transport.Message, error) {
	select {
	case msg := <-c.sess.inbound:
		return msg, nil
	case <-c.sess.done:
		return nil, core.Errorf(core.ErrTransportClosed, "session closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *sessionChannel) Close() error {
	c.sess.close()
	return nil
}
