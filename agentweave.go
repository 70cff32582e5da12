// Package agentweave provides a high-level façade over the workflow engine
// and conversation persistence, enabling rapid construction of multi-agent
// systems. Most applications interact with this package by:
//  1. Creating an AgentWeave via New() (optionally overriding the store or logger)
//  2. Registering agents built around a model and optional tool sessions
//  3. Running workflow definitions (RunChain, RunParallel, Run) or talking to
//     a single agent directly (Send)
//
// The façade delegates orchestration to workflow.Engine while keeping setup
// concise. All defaults are safe for local development and testing; production
// deployments typically supply a durable store and a structured logger.
package agentweave

import (
	"context"
	"fmt"

	"github.com/weftworks/agentweave/agent"
	"github.com/weftworks/agentweave/logging"
	"github.com/weftworks/agentweave/store"
	"github.com/weftworks/agentweave/workflow"
)

// Options configures the AgentWeave instance.
type Options struct {
	// Store persists conversation exports (defaults to in-memory).
	Store store.ConversationStore
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentWeave is the high-level façade aggregating the engine and the
// conversation store.
type AgentWeave struct {
	opts   Options
	engine *workflow.Engine
}

// New creates a new AgentWeave instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *AgentWeave {
	opts := Options{
		Store:  store.NewMemoryStore(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	engine := workflow.NewEngine(workflow.WithEngineLogger(opts.Logger))
	return &AgentWeave{opts: opts, engine: engine}
}

// Engine exposes the underlying workflow engine for advanced use.
func (w *AgentWeave) Engine() *workflow.Engine { return w.engine }

// RegisterAgent adds an agent to the engine registry.
func (w *AgentWeave) RegisterAgent(a *agent.Agent) error { return w.engine.Register(a) }

// Agent returns a registered agent by name.
func (w *AgentWeave) Agent(name string) (*agent.Agent, bool) { return w.engine.Agent(name) }

// Send delivers text to a registered agent and returns its reply.
func (w *AgentWeave) Send(ctx context.Context, agentName, text string) (string, error) {
	a, ok := w.engine.Agent(agentName)
	if !ok {
		return "", fmt.Errorf("agent %q not registered", agentName)
	}
	return a.Send(ctx, text)
}

// Run executes a workflow definition with the given initial input.
func (w *AgentWeave) Run(ctx context.Context, def workflow.Definition, input string) (*workflow.Result, error) {
	return w.engine.Run(ctx, def, map[string]string{workflow.InputKey: input})
}

// RunChain is a helper that builds and runs a chain over the named agents in
// order, using each agent name as its step name.
func (w *AgentWeave) RunChain(ctx context.Context, name string, input string, agents ...string) (*workflow.Result, error) {
	def := workflow.Definition{Name: name, Type: workflow.TypeChain}
	for _, agentName := range agents {
		def.Steps = append(def.Steps, workflow.Step{Name: agentName, Agent: agentName})
	}
	return w.Run(ctx, def, input)
}

// RunParallel is a helper that fans input out across the named agents and
// optionally fans results back in through fanIn (empty string skips fan-in).
func (w *AgentWeave) RunParallel(ctx context.Context, name, input, fanIn string, agents ...string) (*workflow.Result, error) {
	def := workflow.Definition{Name: name, Type: workflow.TypeParallel, FanIn: fanIn}
	for _, agentName := range agents {
		def.Steps = append(def.Steps, workflow.Step{Name: agentName, Agent: agentName})
	}
	return w.Run(ctx, def, input)
}

// Cancel aborts an active run by id, returning false when the run already
// finished.
func (w *AgentWeave) Cancel(runID string) bool { return w.engine.Cancel(runID) }

// SaveConversation exports an agent's conversation into the configured store.
func (w *AgentWeave) SaveConversation(ctx context.Context, agentName string) error {
	a, ok := w.engine.Agent(agentName)
	if !ok {
		return fmt.Errorf("agent %q not registered", agentName)
	}
	blob, err := a.ExportConversation()
	if err != nil {
		return err
	}
	return w.opts.Store.Save(ctx, agentName, blob)
}

// LoadConversation restores an agent's conversation from the configured
// store.
func (w *AgentWeave) LoadConversation(ctx context.Context, agentName string) error {
	a, ok := w.engine.Agent(agentName)
	if !ok {
		return fmt.Errorf("agent %q not registered", agentName)
	}
	blob, err := w.opts.Store.Load(ctx, agentName)
	if err != nil {
		return err
	}
	return a.ImportConversation(blob)
}
