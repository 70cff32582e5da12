package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/logging"
	"github.com/weftworks/agentweave/model"
	"github.com/weftworks/agentweave/protocol"
)

const (
	// DefaultMaxToolDepth bounds how many times one Send may loop back into
	// the model with tool results.
	DefaultMaxToolDepth = 8
	// DefaultModelTimeout bounds a single model call.
	DefaultModelTimeout = 120 * time.Second
)

// Agent couples a model with an owned conversation and the tool sessions it
// may call. Construct with New; zero value is not usable.
type Agent struct {
	name         string
	instruction  string
	model        model.Model
	sessions     []*protocol.ClientSession
	conversation *core.Conversation
	maxToolDepth int
	modelTimeout time.Duration
	logger       logging.Logger

	busy sync.Mutex

	toolsOnce  sync.Once
	toolDefs   []model.ToolDefinition
	toolOwners map[string]*protocol.ClientSession
}

// Option configures an Agent.
type Option func(*Agent)

// WithInstruction sets the system instruction.
func WithInstruction(instruction string) Option {
	return func(a *Agent) { a.instruction = instruction }
}

// WithSessions attaches negotiated protocol sessions whose tools the agent
// may call.
func WithSessions(sessions ...*protocol.ClientSession) Option {
	return func(a *Agent) { a.sessions = append(a.sessions, sessions...) }
}

// WithMaxToolDepth overrides the tool loop bound.
func WithMaxToolDepth(depth int) Option {
	return func(a *Agent) { a.maxToolDepth = depth }
}

// WithModelTimeout overrides the per-call model timeout.
func WithModelTimeout(d time.Duration) Option {
	return func(a *Agent) { a.modelTimeout = d }
}

// WithLogger sets the agent logger.
func WithLogger(l logging.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithConversation seeds the agent with an existing conversation instead of
// an empty one.
func WithConversation(c *core.Conversation) Option {
	return func(a *Agent) { a.conversation = c }
}

// New creates an agent around a model.
func New(name string, m model.Model, opts ...Option) *Agent {
	a := &Agent{
		name:         name,
		model:        m,
		conversation: core.NewConversation(),
		maxToolDepth: DefaultMaxToolDepth,
		modelTimeout: DefaultModelTimeout,
		logger:       logging.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Instruction returns the system instruction.
func (a *Agent) Instruction() string { return a.instruction }

// Conversation returns the agent's owned conversation.
func (a *Agent) Conversation() *core.Conversation { return a.conversation }

// Send appends text as a user message and drives the model to a final
// assistant reply, servicing tool calls through the attached sessions along
// the way. The tool loop is bounded by MaxToolDepth; exceeding it fails with
// TOOL_LOOP_EXCEEDED. A Send while another Send is in flight is rejected
// with AGENT_BUSY.
func (a *Agent) Send(ctx context.Context, text string) (string, error) {
	if !a.busy.TryLock() {
		return "", core.Errorf(core.ErrAgentBusy, "send already in flight").WithAgent(a.name)
	}
	defer a.busy.Unlock()

	a.conversation.Append(core.NewUserMessage(text))
	return a.run(ctx)
}

// run loops model calls until a final text reply.
func (a *Agent) run(ctx context.Context) (string, error) {
	defs, owners := a.tools(ctx)

	for depth := 0; ; depth++ {
		resp, err := a.generate(ctx, defs)
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			a.conversation.Append(core.NewAssistantMessage(resp.Text))
			return resp.Text, nil
		}

		if depth >= a.maxToolDepth {
			return "", core.Errorf(core.ErrToolLoopExceeded,
				"model requested tools beyond depth %d", a.maxToolDepth).WithAgent(a.name)
		}

		a.conversation.Append(assistantToolCallMessage(resp))
		for _, call := range resp.ToolCalls {
			a.conversation.Append(a.invokeTool(ctx, owners, call))
		}
	}
}

// generate performs one bounded model call, mapping a per-call deadline to
// TIMEOUT and external cancellation to CANCELLED.
func (a *Agent) generate(ctx context.Context, defs []model.ToolDefinition) (*model.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.modelTimeout)
	defer cancel()

	start := time.Now()
	resp, err := a.model.Generate(callCtx, model.Request{
		Instruction: a.instruction,
		Messages:    a.conversation.Messages(),
		Tools:       defs,
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, core.Errorf(core.ErrCancelled, "model call cancelled").WithAgent(a.name).WithCause(ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			return nil, core.Errorf(core.ErrTimeout,
				"model call exceeded %s", a.modelTimeout).WithAgent(a.name).WithCause(err)
		default:
			return nil, err
		}
	}

	a.logger.Debug("model call complete",
		"agent", a.name, "duration", time.Since(start), "tool_calls", len(resp.ToolCalls))
	return resp, nil
}

// invokeTool executes one requested call and records the result. Tool
// failures are fed back to the model as error results, not surfaced as Send
// failures.
func (a *Agent) invokeTool(ctx context.Context, owners map[string]*protocol.ClientSession, call model.ToolCall) core.Message {
	session, ok := owners[call.Name]
	if !ok {
		a.logger.Warn("model requested unknown tool", "agent", a.name, "tool", call.Name)
		return core.NewToolResultMessage(call.ID, call.Name, nil,
			core.Errorf("TOOL_NOT_FOUND", "no session provides tool %q", call.Name))
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return core.NewToolResultMessage(call.ID, call.Name, nil, err)
		}
	}

	start := time.Now()
	result, err := session.CallTool(ctx, call.Name, args)
	a.logger.Debug("tool call complete",
		"agent", a.name, "tool", call.Name, "duration", time.Since(start), "error", err != nil)
	return core.NewToolResultMessage(call.ID, call.Name, result, err)
}

// tools resolves the tool catalog across attached sessions once per agent.
// The first session to advertise a name owns it.
func (a *Agent) tools(ctx context.Context) ([]model.ToolDefinition, map[string]*protocol.ClientSession) {
	a.toolsOnce.Do(func() {
		a.toolOwners = make(map[string]*protocol.ClientSession)
		for _, session := range a.sessions {
			if !session.PeerCapabilities().Tools {
				continue
			}
			infos, err := session.ListTools(ctx)
			if err != nil {
				a.logger.Warn("list tools failed", "agent", a.name, "error", err)
				continue
			}
			for _, info := range infos {
				if _, taken := a.toolOwners[info.Name]; taken {
					a.logger.Warn("duplicate tool name across sessions", "tool", info.Name)
					continue
				}
				a.toolOwners[info.Name] = session
				a.toolDefs = append(a.toolDefs, model.ToolDefinition{
					Name:        info.Name,
					Description: info.Description,
					InputSchema: info.InputSchema,
				})
			}
		}
	})
	return a.toolDefs, a.toolOwners
}

// ApplyPrompt fetches a named prompt template from the first bound session
// that serves it, renders it with args, and delegates the rendered text to
// Send.
func (a *Agent) ApplyPrompt(ctx context.Context, name string, args map[string]any) (string, error) {
	var lastErr error
	for _, session := range a.sessions {
		if !session.PeerCapabilities().Prompts {
			continue
		}
		result, err := session.GetPrompt(ctx, name, args)
		if err != nil {
			lastErr = err
			continue
		}
		return a.Send(ctx, result.Rendered)
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", core.Errorf("PROMPT_NOT_FOUND", "no session provides prompt %q", name).WithAgent(a.name)
}

// ExportConversation serializes the conversation for transfer or persistence.
func (a *Agent) ExportConversation() ([]byte, error) {
	return a.conversation.Export()
}

// ImportConversation replaces the conversation with an exported blob. The
// import is rejected while a Send is in flight.
func (a *Agent) ImportConversation(data []byte) error {
	if !a.busy.TryLock() {
		return core.Errorf(core.ErrAgentBusy, "send in flight").WithAgent(a.name)
	}
	defer a.busy.Unlock()
	return a.conversation.Import(data)
}

// assistantToolCallMessage records the model's tool request turn.
func assistantToolCallMessage(resp *model.Response) core.Message {
	parts := make([]core.ContentPart, 0, len(resp.ToolCalls)+1)
	if resp.Text != "" {
		parts = append(parts, core.TextPart{Text: resp.Text})
	}
	for _, call := range resp.ToolCalls {
		parts = append(parts, core.ToolCallPart{CallID: call.ID, Name: call.Name, Arguments: call.Arguments})
	}
	return core.NewMessage(core.RoleAssistant, parts...)
}
