package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weftworks/agentweave/agent"
	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/logging"
)

// BranchResult is the explicit per-branch status of one parallel fan-out
// branch.
type BranchResult struct {
	Step   string `json:"step"`
	Agent  string `json:"agent"`
	Output string `json:"output,omitempty"`
	Err    error  `json:"-"`
}

// Result is the outcome of one workflow run.
type Result struct {
	RunID    string            `json:"run_id"`
	Workflow string            `json:"workflow"`
	State    core.RunState     `json:"state"`
	Output   string            `json:"output,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
	// Branches is populated for parallel runs.
	Branches []BranchResult `json:"branches,omitempty"`
}

// Engine holds the agent registry and executes workflow definitions.
type Engine struct {
	logger logging.Logger

	mu         sync.RWMutex
	agents     map[string]*agent.Agent
	activeRuns map[string]context.CancelFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(l logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an empty engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:     logging.NoOpLogger{},
		agents:     make(map[string]*agent.Agent),
		activeRuns: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds an agent to the registry. Names are unique.
func (e *Engine) Register(a *agent.Agent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.agents[a.Name()]; exists {
		return fmt.Errorf("agent %q already registered", a.Name())
	}
	e.agents[a.Name()] = a
	return nil
}

// Agent looks up a registered agent.
func (e *Engine) Agent(name string) (*agent.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[name]
	return a, ok
}

// resolves reports whether a name is registered, for definition validation.
func (e *Engine) resolves(name string) bool {
	_, ok := e.Agent(name)
	return ok
}

// Run validates def and executes it against a fresh execution context seeded
// with initial. The returned Result carries the terminal run state; err is
// non-nil for failed and cancelled runs. Cancelling ctx (or calling Cancel
// with the run id) propagates to every in-flight step.
func (e *Engine) Run(ctx context.Context, def Definition, initial map[string]string) (*Result, error) {
	if err := def.Validate(e.resolves); err != nil {
		return nil, err
	}

	runID := core.NewID()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.activeRuns[runID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.activeRuns, runID)
		e.mu.Unlock()
	}()

	ec := core.NewExecutionContext(initial)
	result := &Result{RunID: runID, Workflow: def.Name, State: core.RunRunning}
	e.logger.Info("workflow run started", "run_id", runID, "workflow", def.Name, "type", string(def.Type))
	start := time.Now()

	var err error
	switch def.Type {
	case TypeChain:
		result.Output, err = e.runChain(runCtx, def, ec)
	case TypeParallel:
		result.Output, result.Branches, err = e.runParallel(runCtx, def, ec)
	case TypeRouter:
		result.Output, err = e.runRouter(runCtx, def, ec)
	case TypeOrchestrator:
		result.Output, err = e.runOrchestrator(runCtx, def, ec)
	case TypeEvaluatorOptimizer:
		result.Output, err = e.runEvaluatorOptimizer(runCtx, def, ec)
	}

	result.Context = ec.Snapshot()
	switch {
	case err == nil:
		result.State = core.RunCompleted
	case isCancellation(err):
		result.State = core.RunCancelled
	default:
		result.State = core.RunFailed
	}

	e.logger.Info("workflow run finished",
		"run_id", runID, "workflow", def.Name, "state", result.State.String(), "duration", time.Since(start))
	return result, err
}

// Cancel aborts an in-flight run. Reports whether the run was active.
func (e *Engine) Cancel(runID string) bool {
	e.mu.Lock()
	cancel, ok := e.activeRuns[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// ActiveRuns returns the ids of runs currently in flight.
func (e *Engine) ActiveRuns() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.activeRuns))
	for id := range e.activeRuns {
		out = append(out, id)
	}
	return out
}

// invoke runs one agent call under the definition's step deadline and stamps
// step/agent identity onto failures.
func (e *Engine) invoke(ctx context.Context, def Definition, stepName, agentName, input string) (string, error) {
	a, ok := e.Agent(agentName)
	if !ok {
		return "", core.Errorf(core.ErrInvalidDefinition, "agent %q not registered", agentName).WithStep(stepName)
	}

	stepCtx := ctx
	if def.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, def.StepTimeout)
		defer cancel()
	}

	output, err := a.Send(stepCtx, input)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = core.Errorf(core.ErrCancelled, "step cancelled").WithCause(ctx.Err())
		case stepCtx.Err() == context.DeadlineExceeded:
			err = core.Errorf(core.ErrTimeout, "step exceeded %s", def.StepTimeout).WithCause(err)
		}
		return "", stamp(err, stepName, agentName)
	}
	return output, nil
}

// stamp fills missing step/agent identity on framework errors so failures
// are attributable to a topology position.
func stamp(err error, stepName, agentName string) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		if ce.Step == "" {
			ce.Step = stepName
		}
		if ce.Agent == "" {
			ce.Agent = agentName
		}
		return err
	}
	return core.Errorf("STEP_FAILED", "%s", err.Error()).WithStep(stepName).WithAgent(agentName).WithCause(err)
}

// isCancellation distinguishes external cancellation from failures, timeouts
// included.
func isCancellation(err error) bool {
	if core.IsCode(err, core.ErrCancelled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// stepInput resolves the input text for a step: an explicit input key must
// already be written; otherwise fallback is used.
func stepInput(ec *core.ExecutionContext, key, fallback string) (string, error) {
	if key == "" {
		return fallback, nil
	}
	v, ok := ec.Get(key)
	if !ok {
		return "", core.Errorf(core.ErrInvalidDefinition, "input key %q not written", key)
	}
	return v, nil
}
