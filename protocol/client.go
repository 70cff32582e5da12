package protocol

import (
	"context"
	"sync"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/elicit"
	"github.com/weftworks/agentweave/logging"
	"github.com/weftworks/agentweave/transport"
)

// ClientSession is the agent-side end of the protocol. After Negotiate
// succeeds it multiplexes concurrent requests over one channel, correlating
// replies by envelope id, and services elicitation requests pushed by the
// server in between.
type ClientSession struct {
	id         string
	channel    transport.Channel
	controller *elicit.Controller
	required   Capabilities
	logger     logging.Logger

	mu       sync.Mutex
	state    SessionState
	peerCaps Capabilities
	pending  map[string]chan *transport.Message

	loopCtx    context.Context
	loopCancel context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

// ClientOption configures a ClientSession.
type ClientOption func(*ClientSession)

// WithElicitation attaches the controller that services server-initiated
// human-input requests. Without one the session behaves as elicit.ModeNone.
func WithElicitation(ctrl *elicit.Controller) ClientOption {
	return func(s *ClientSession) { s.controller = ctrl }
}

// WithRequired declares the capabilities the server must advertise for
// negotiation to succeed. Defaults to requiring tools.
func WithRequired(caps Capabilities) ClientOption {
	return func(s *ClientSession) { s.required = caps }
}

// WithClientLogger sets the session logger.
func WithClientLogger(l logging.Logger) ClientOption {
	return func(s *ClientSession) { s.logger = l }
}

// NewClientSession wraps a connected channel. Call Negotiate before any
// operation.
func NewClientSession(channel transport.Channel, opts ...ClientOption) *ClientSession {
	loopCtx, loopCancel := context.WithCancel(context.Background())
	s := &ClientSession{
		id:         core.NewID(),
		channel:    channel,
		controller: elicit.NewController(elicit.ModeNone),
		required:   Capabilities{Tools: true},
		logger:     logging.NoOpLogger{},
		state:      StateUninitialized,
		pending:    make(map[string]chan *transport.Message),
		loopCtx:    loopCtx,
		loopCancel: loopCancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *ClientSession) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *ClientSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PeerCapabilities returns the server's advertised set. Valid once Ready.
func (s *ClientSession) PeerCapabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerCaps
}

// Negotiate exchanges capability sets with the server. On success the session
// becomes Ready and the background read loop starts. A mismatch in either
// direction closes the session with CAPABILITY_MISMATCH.
func (s *ClientSession) Negotiate(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return core.Errorf(core.ErrSessionClosed, "negotiate in state %s", state).WithSession(s.id)
	}
	s.state = StateNegotiating
	s.mu.Unlock()

	local := Capabilities{
		Sampling:    true,
		Elicitation: s.controller.Advertises(),
	}

	msg, err := transport.NewMessage(transport.TypeCapabilityNegotiation, core.NewID(), negotiatePayload{
		Version:      Version,
		Capabilities: local,
		Required:     s.required,
	})
	if err != nil {
		return err
	}
	if err := s.channel.Send(ctx, msg); err != nil {
		s.fail()
		return err
	}

	reply, err := s.channel.Receive(ctx)
	if err != nil {
		s.fail()
		return err
	}
	if reply.Type == transport.TypeError {
		var ep errorPayload
		if derr := reply.Decode(&ep); derr == nil {
			s.fail()
			return ep.asError(s.id)
		}
	}
	if reply.Type != transport.TypeCapabilityNegotiation {
		s.fail()
		return core.Errorf(core.ErrCapabilityMismatch,
			"unexpected negotiation reply %s", reply.Type).WithSession(s.id)
	}

	var np negotiatePayload
	if err := reply.Decode(&np); err != nil {
		s.fail()
		return err
	}
	if np.Version != Version {
		s.fail()
		return core.Errorf(core.ErrCapabilityMismatch,
			"protocol version %q, want %q", np.Version, Version).WithSession(s.id)
	}
	if !np.Capabilities.Satisfies(s.required) {
		s.fail()
		return core.Errorf(core.ErrCapabilityMismatch,
			"server missing capabilities %v", np.Capabilities.missing(s.required)).WithSession(s.id)
	}
	if !local.Satisfies(np.Required) {
		s.fail()
		return core.Errorf(core.ErrCapabilityMismatch,
			"server requires capabilities %v", local.missing(np.Required)).WithSession(s.id)
	}

	s.mu.Lock()
	s.peerCaps = np.Capabilities
	s.state = StateReady
	s.mu.Unlock()

	s.logger.Debug("session ready", "session_id", s.id)
	go s.readLoop()
	return nil
}

// readLoop routes inbound envelopes: server-pushed elicitation requests go to
// the controller, everything else resolves a pending call by envelope id.
func (s *ClientSession) readLoop() {
	for {
		msg, err := s.channel.Receive(s.loopCtx)
		if err != nil {
			s.closeWith(err)
			return
		}

		if msg.Type == transport.TypeElicitationRequest {
			go s.serviceElicitation(msg)
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[msg.ID]
		s.mu.Unlock()
		if !ok {
			s.logger.Warn("reply for unknown call", "id", msg.ID, "type", string(msg.Type))
			continue
		}
		ch <- msg
	}
}

// serviceElicitation runs one server-initiated human-input request through
// the controller and reports the outcome back under the same envelope id.
func (s *ClientSession) serviceElicitation(msg *transport.Message) {
	var payload elicitRequestPayload
	response := elicitResponsePayload{Action: elicitActionCancel, Reason: "malformed request"}

	if err := msg.Decode(&payload); err == nil {
		req := elicit.NewRequestWithID(msg.ID, s.id, payload.Schema)
		resp, err := s.controller.Handle(s.loopCtx, req)
		switch {
		case err == nil:
			response = elicitResponsePayload{Action: elicitActionAccept, Values: resp.Values}
		case core.IsCode(err, core.ErrElicitationTimedOut):
			response = elicitResponsePayload{Action: elicitActionTimeout, Reason: err.Error()}
		default:
			response = elicitResponsePayload{Action: elicitActionCancel, Reason: req.Reason()}
		}
	}

	out, err := transport.NewMessage(transport.TypeElicitationResponse, msg.ID, response)
	if err != nil {
		s.logger.Error("encode elicitation response", "error", err)
		return
	}
	if err := s.channel.Send(s.loopCtx, out); err != nil {
		s.logger.Warn("send elicitation response", "error", err)
	}
}

// call performs one request/response exchange.
func (s *ClientSession) call(ctx context.Context, msgType transport.MessageType, payload any) (*transport.Message, error) {
	s.mu.Lock()
	if s.state != StateReady {
		state := s.state
		s.mu.Unlock()
		return nil, core.Errorf(core.ErrSessionClosed, "session is %s", state).WithSession(s.id)
	}
	id := core.NewID()
	ch := make(chan *transport.Message, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	msg, err := transport.NewMessage(msgType, id, payload)
	if err != nil {
		return nil, err
	}
	if err := s.channel.Send(ctx, msg); err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		if reply.Type == transport.TypeError {
			var ep errorPayload
			if err := reply.Decode(&ep); err != nil {
				return nil, err
			}
			return nil, ep.asError(s.id)
		}
		return reply, nil
	case <-s.done:
		return nil, core.Errorf(core.ErrSessionClosed, "session closed with call outstanding").WithSession(s.id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListTools returns the server's advertised tools.
func (s *ClientSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if err := s.requireCap(s.PeerCapabilities().Tools, "tools"); err != nil {
		return nil, err
	}
	reply, err := s.call(ctx, transport.TypeToolList, nil)
	if err != nil {
		return nil, err
	}
	var p toolListPayload
	if err := reply.Decode(&p); err != nil {
		return nil, err
	}
	return p.Tools, nil
}

// CallTool invokes a named server tool. The call may block on interleaved
// elicitation requests the server issues before producing its result.
func (s *ClientSession) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	if err := s.requireCap(s.PeerCapabilities().Tools, "tools"); err != nil {
		return nil, err
	}
	reply, err := s.call(ctx, transport.TypeToolCall, toolCallPayload{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var p toolResultPayload
	if err := reply.Decode(&p); err != nil {
		return nil, err
	}
	return p.Result, nil
}

// ListPrompts returns the server's advertised prompt templates.
func (s *ClientSession) ListPrompts(ctx context.Context) ([]PromptInfo, error) {
	if err := s.requireCap(s.PeerCapabilities().Prompts, "prompts"); err != nil {
		return nil, err
	}
	reply, err := s.call(ctx, transport.TypePromptList, nil)
	if err != nil {
		return nil, err
	}
	var p promptListPayload
	if err := reply.Decode(&p); err != nil {
		return nil, err
	}
	return p.Prompts, nil
}

// GetPrompt renders a named prompt template with the given arguments.
func (s *ClientSession) GetPrompt(ctx context.Context, name string, args map[string]any) (*PromptResult, error) {
	if err := s.requireCap(s.PeerCapabilities().Prompts, "prompts"); err != nil {
		return nil, err
	}
	reply, err := s.call(ctx, transport.TypePromptGet, promptGetPayload{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var p PromptResult
	if err := reply.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListResources returns the server's advertised resources.
func (s *ClientSession) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	if err := s.requireCap(s.PeerCapabilities().Resources, "resources"); err != nil {
		return nil, err
	}
	reply, err := s.call(ctx, transport.TypeResourceList, nil)
	if err != nil {
		return nil, err
	}
	var p resourceListPayload
	if err := reply.Decode(&p); err != nil {
		return nil, err
	}
	return p.Resources, nil
}

// ReadResource resolves a resource body by URI.
func (s *ClientSession) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	if err := s.requireCap(s.PeerCapabilities().Resources, "resources"); err != nil {
		return nil, err
	}
	reply, err := s.call(ctx, transport.TypeResourceRead, resourceReadPayload{URI: uri})
	if err != nil {
		return nil, err
	}
	var p ResourceContent
	if err := reply.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Close transitions the session to Closed, tears down the channel, and fails
// every outstanding call with SESSION_CLOSED. Idempotent.
func (s *ClientSession) Close() error {
	s.closeWith(nil)
	return nil
}

func (s *ClientSession) closeWith(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		s.loopCancel()
		close(s.done)
		_ = s.channel.Close()
		if cause != nil {
			s.logger.Debug("session closed", "session_id", s.id, "cause", cause)
		}
	})
}

// fail marks a session that never reached Ready as closed.
func (s *ClientSession) fail() {
	s.closeWith(nil)
}

func (s *ClientSession) requireCap(have bool, name string) error {
	if s.State() != StateReady {
		return core.Errorf(core.ErrSessionClosed, "session is %s", s.State()).WithSession(s.id)
	}
	if !have {
		return core.Errorf(core.ErrCapabilityMismatch, "server does not advertise %s", name).WithSession(s.id)
	}
	return nil
}
