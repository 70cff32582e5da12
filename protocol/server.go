package protocol

import (
	"context"
	"sync"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/elicit"
	"github.com/weftworks/agentweave/internal/util"
	"github.com/weftworks/agentweave/logging"
	"github.com/weftworks/agentweave/transport"
)

// ServerSession serves one connected peer from a Registry. Tool calls run on
// their own goroutines so a handler can issue elicitation requests and keep
// the channel serviced while it waits for the human.
type ServerSession struct {
	id       string
	channel  transport.Channel
	registry *Registry
	required Capabilities
	logger   logging.Logger

	mu             sync.Mutex
	state          SessionState
	peerCaps       Capabilities
	pendingElicits map[string]chan elicitResponsePayload

	done      chan struct{}
	closeOnce sync.Once
}

// ServerOption configures a ServerSession.
type ServerOption func(*ServerSession)

// WithServerLogger sets the session logger.
func WithServerLogger(l logging.Logger) ServerOption {
	return func(s *ServerSession) { s.logger = l }
}

// WithServerRequired declares capabilities the connecting client must
// advertise, typically elicitation for servers whose tools need a human.
func WithServerRequired(caps Capabilities) ServerOption {
	return func(s *ServerSession) { s.required = caps }
}

// NewServerSession binds a registry to a connected channel. Call Serve to
// start processing.
func NewServerSession(channel transport.Channel, registry *Registry, opts ...ServerOption) *ServerSession {
	s := &ServerSession{
		id:             core.NewID(),
		channel:        channel,
		registry:       registry,
		logger:         logging.NoOpLogger{},
		state:          StateUninitialized,
		pendingElicits: make(map[string]chan elicitResponsePayload),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *ServerSession) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *ServerSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Serve processes envelopes until the channel closes or ctx is done. The
// first envelope must be the client's negotiation; anything else before
// Ready is rejected.
func (s *ServerSession) Serve(ctx context.Context) error {
	defer s.close()

	for {
		msg, err := s.channel.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if core.IsCode(err, core.ErrTransportClosed) {
				s.logger.Debug("peer disconnected", "session_id", s.id)
				return nil
			}
			return err
		}

		switch msg.Type {
		case transport.TypeCapabilityNegotiation:
			if err := s.negotiate(ctx, msg); err != nil {
				return err
			}
		case transport.TypeElicitationResponse:
			s.resolveElicitation(msg)
		case transport.TypeToolCall:
			if !s.ready(ctx, msg) {
				continue
			}
			go s.handleToolCall(ctx, msg)
		case transport.TypeToolList:
			if !s.ready(ctx, msg) {
				continue
			}
			s.reply(ctx, msg.ID, transport.TypeToolList, toolListPayload{Tools: s.registry.ListTools()})
		case transport.TypePromptList:
			if !s.ready(ctx, msg) {
				continue
			}
			s.reply(ctx, msg.ID, transport.TypePromptList, promptListPayload{Prompts: s.registry.ListPrompts()})
		case transport.TypePromptGet:
			if !s.ready(ctx, msg) {
				continue
			}
			s.handlePromptGet(ctx, msg)
		case transport.TypeResourceList:
			if !s.ready(ctx, msg) {
				continue
			}
			s.reply(ctx, msg.ID, transport.TypeResourceList, resourceListPayload{Resources: s.registry.ListResources()})
		case transport.TypeResourceRead:
			if !s.ready(ctx, msg) {
				continue
			}
			s.handleResourceRead(ctx, msg)
		default:
			s.replyError(ctx, msg.ID, core.Errorf("UNSUPPORTED", "unsupported message type %s", msg.Type))
		}
	}
}

// negotiate handles the client's opening envelope.
func (s *ServerSession) negotiate(ctx context.Context, msg *transport.Message) error {
	var np negotiatePayload
	if err := msg.Decode(&np); err != nil {
		s.replyError(ctx, msg.ID, core.Errorf(core.ErrCapabilityMismatch, "malformed negotiation"))
		return err
	}

	local := s.registry.Capabilities()

	if np.Version != Version {
		err := core.Errorf(core.ErrCapabilityMismatch, "protocol version %q, want %q", np.Version, Version)
		s.replyError(ctx, msg.ID, err)
		return err
	}
	if !local.Satisfies(np.Required) {
		err := core.Errorf(core.ErrCapabilityMismatch,
			"missing capabilities %v", local.missing(np.Required)).WithSession(s.id)
		s.replyError(ctx, msg.ID, err)
		return err
	}
	if !np.Capabilities.Satisfies(s.required) {
		err := core.Errorf(core.ErrCapabilityMismatch,
			"client missing capabilities %v", np.Capabilities.missing(s.required)).WithSession(s.id)
		s.replyError(ctx, msg.ID, err)
		return err
	}

	s.mu.Lock()
	s.peerCaps = np.Capabilities
	s.state = StateReady
	s.mu.Unlock()

	s.reply(ctx, msg.ID, transport.TypeCapabilityNegotiation, negotiatePayload{
		Version:      Version,
		Capabilities: local,
		Required:     s.required,
	})
	s.logger.Debug("session negotiated", "session_id", s.id, "elicitation", np.Capabilities.Elicitation)
	return nil
}

// handleToolCall validates arguments and runs the tool handler.
func (s *ServerSession) handleToolCall(ctx context.Context, msg *transport.Message) {
	var p toolCallPayload
	if err := msg.Decode(&p); err != nil {
		s.replyError(ctx, msg.ID, core.Errorf("VALIDATION_ERROR", "malformed tool call"))
		return
	}

	tool, ok := s.registry.Tool(p.Name)
	if !ok {
		s.replyError(ctx, msg.ID, core.Errorf("TOOL_NOT_FOUND", "unknown tool %q", p.Name))
		return
	}

	if err := util.ValidateArguments(p.Arguments, tool.InputSchema()); err != nil {
		s.replyError(ctx, msg.ID, core.Errorf("VALIDATION_ERROR", "%s: %s", p.Name, err.Error()))
		return
	}

	tc := &ToolContext{CallID: msg.ID, Args: p.Arguments}
	if s.peerSupportsElicitation() {
		tc.elicitor = s
	}

	result, err := tool.Call(ctx, tc)
	if err != nil {
		s.replyError(ctx, msg.ID, err)
		return
	}
	s.reply(ctx, msg.ID, transport.TypeToolResult, toolResultPayload{Result: result})
}

func (s *ServerSession) handlePromptGet(ctx context.Context, msg *transport.Message) {
	var p promptGetPayload
	if err := msg.Decode(&p); err != nil {
		s.replyError(ctx, msg.ID, core.Errorf("VALIDATION_ERROR", "malformed prompt request"))
		return
	}

	prompt, ok := s.registry.Prompt(p.Name)
	if !ok {
		s.replyError(ctx, msg.ID, core.Errorf("PROMPT_NOT_FOUND", "unknown prompt %q", p.Name))
		return
	}

	result, err := prompt.Render(p.Arguments)
	if err != nil {
		s.replyError(ctx, msg.ID, core.Errorf("VALIDATION_ERROR", "%s", err.Error()))
		return
	}
	s.reply(ctx, msg.ID, transport.TypePromptGet, result)
}

func (s *ServerSession) handleResourceRead(ctx context.Context, msg *transport.Message) {
	var p resourceReadPayload
	if err := msg.Decode(&p); err != nil {
		s.replyError(ctx, msg.ID, core.Errorf("VALIDATION_ERROR", "malformed resource request"))
		return
	}

	res, ok := s.registry.Resource(p.URI)
	if !ok {
		s.replyError(ctx, msg.ID, core.Errorf("RESOURCE_NOT_FOUND", "unknown resource %q", p.URI))
		return
	}

	content, err := res.Read(ctx)
	if err != nil {
		s.replyError(ctx, msg.ID, core.Errorf("READ_ERROR", "%s", err.Error()))
		return
	}
	s.reply(ctx, msg.ID, transport.TypeResourceRead, content)
}

// Elicit sends a human-input request to the connected client and blocks for
// its resolution. Implements Elicitor for tool handlers.
func (s *ServerSession) Elicit(ctx context.Context, schema elicit.Schema) (map[string]any, error) {
	if !s.peerSupportsElicitation() {
		return nil, core.Errorf(core.ErrCapabilityMismatch,
			"client did not advertise elicitation").WithSession(s.id)
	}

	id := core.NewID()
	ch := make(chan elicitResponsePayload, 1)
	s.mu.Lock()
	s.pendingElicits[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pendingElicits, id)
		s.mu.Unlock()
	}()

	msg, err := transport.NewMessage(transport.TypeElicitationRequest, id, elicitRequestPayload{
		SessionID: s.id,
		Schema:    schema,
	})
	if err != nil {
		return nil, err
	}
	if err := s.channel.Send(ctx, msg); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		switch resp.Action {
		case elicitActionAccept:
			return resp.Values, nil
		case elicitActionTimeout:
			return nil, core.Errorf(core.ErrElicitationTimedOut, "%s", nonEmpty(resp.Reason, "request timed out")).WithSession(s.id)
		default:
			return nil, core.Errorf(core.ErrElicitationCancelled, "%s", nonEmpty(resp.Reason, "request cancelled")).WithSession(s.id)
		}
	case <-s.done:
		return nil, core.Errorf(core.ErrSessionClosed, "session closed while awaiting input").WithSession(s.id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveElicitation routes a client response to the waiting tool handler.
func (s *ServerSession) resolveElicitation(msg *transport.Message) {
	var p elicitResponsePayload
	if err := msg.Decode(&p); err != nil {
		s.logger.Warn("malformed elicitation response", "id", msg.ID)
		return
	}

	s.mu.Lock()
	ch, ok := s.pendingElicits[msg.ID]
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("elicitation response for unknown request", "id", msg.ID)
		return
	}
	ch <- p
}

// ready rejects pre-negotiation traffic.
func (s *ServerSession) ready(ctx context.Context, msg *transport.Message) bool {
	if s.State() == StateReady {
		return true
	}
	s.replyError(ctx, msg.ID, core.Errorf(core.ErrSessionClosed, "session not negotiated").WithSession(s.id))
	return false
}

func (s *ServerSession) peerSupportsElicitation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerCaps.Elicitation
}

func (s *ServerSession) reply(ctx context.Context, id string, msgType transport.MessageType, payload any) {
	msg, err := transport.NewMessage(msgType, id, payload)
	if err != nil {
		s.logger.Error("encode reply", "error", err)
		return
	}
	if err := s.channel.Send(ctx, msg); err != nil {
		s.logger.Warn("send reply", "error", err)
	}
}

func (s *ServerSession) replyError(ctx context.Context, id string, err error) {
	code := core.CodeOf(err)
	if code == "" {
		code = "INTERNAL"
	}
	s.reply(ctx, id, transport.TypeError, errorPayload{Code: string(code), Message: err.Error()})
}

func (s *ServerSession) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
		_ = s.channel.Close()
	})
}

// Close tears the session down. Idempotent.
func (s *ServerSession) Close() error {
	s.close()
	return nil
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
