package workflow

import (
	"time"

	"github.com/weftworks/agentweave/core"
)

// Type names a workflow topology.
type Type string

const (
	TypeChain              Type = "chain"
	TypeParallel           Type = "parallel"
	TypeRouter             Type = "router"
	TypeOrchestrator       Type = "orchestrator"
	TypeEvaluatorOptimizer Type = "evaluator_optimizer"
)

// InputKey is the execution context key the run's initial input is seeded
// under and the default input for first steps.
const InputKey = "input"

// DefaultMaxIterations bounds orchestrator and evaluator-optimizer loops
// when the definition does not set one.
const DefaultMaxIterations = 5

// Step binds an agent into a topology. InputKey defaults to the previous
// step's output (chains) or the run input (parallel); OutputKey defaults to
// the step name.
type Step struct {
	Name      string `yaml:"name" json:"name"`
	Agent     string `yaml:"agent" json:"agent"`
	InputKey  string `yaml:"input_key,omitempty" json:"input_key,omitempty"`
	OutputKey string `yaml:"output_key,omitempty" json:"output_key,omitempty"`
}

// outputKey returns the effective context key this step writes.
func (s Step) outputKey() string {
	if s.OutputKey != "" {
		return s.OutputKey
	}
	return s.Name
}

// Definition describes one workflow. Only the fields for its Type are
// consulted; Validate rejects definitions whose required fields are missing
// or whose agent references do not resolve.
type Definition struct {
	Name string `yaml:"name" json:"name"`
	Type Type   `yaml:"type" json:"type"`

	// Chain and parallel branches.
	Steps []Step `yaml:"steps,omitempty" json:"steps,omitempty"`

	// Parallel: optional aggregator receiving all branch outputs in declared
	// step order, and the fail-fast switch.
	FanIn    string `yaml:"fan_in,omitempty" json:"fan_in,omitempty"`
	FailFast bool   `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`

	// Router.
	Classifier   string            `yaml:"classifier,omitempty" json:"classifier,omitempty"`
	Routes       map[string]string `yaml:"routes,omitempty" json:"routes,omitempty"`
	DefaultRoute string            `yaml:"default_route,omitempty" json:"default_route,omitempty"`

	// Orchestrator.
	Planner string `yaml:"planner,omitempty" json:"planner,omitempty"`
	Worker  string `yaml:"worker,omitempty" json:"worker,omitempty"`

	// Evaluator-optimizer.
	Generator   string  `yaml:"generator,omitempty" json:"generator,omitempty"`
	Evaluator   string  `yaml:"evaluator,omitempty" json:"evaluator,omitempty"`
	AcceptScore float64 `yaml:"accept_score,omitempty" json:"accept_score,omitempty"`

	// Iteration bound for orchestrator and evaluator-optimizer loops.
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	// Per-step deadline. Zero means no step-level deadline.
	StepTimeout time.Duration `yaml:"step_timeout,omitempty" json:"step_timeout,omitempty"`
}

// maxIterations returns the effective loop bound.
func (d Definition) maxIterations() int {
	if d.MaxIterations > 0 {
		return d.MaxIterations
	}
	return DefaultMaxIterations
}

// Validate checks the definition against an agent resolver before any agent
// is invoked.
func (d Definition) Validate(resolves func(name string) bool) error {
	invalid := func(format string, args ...any) error {
		return core.Errorf(core.ErrInvalidDefinition, format, args...).WithStep(d.Name)
	}
	requireAgent := func(role, name string) error {
		if name == "" {
			return invalid("%s agent not set", role)
		}
		if !resolves(name) {
			return invalid("%s agent %q not registered", role, name)
		}
		return nil
	}

	switch d.Type {
	case TypeChain:
		if len(d.Steps) == 0 {
			return invalid("chain requires at least one step")
		}
		for _, step := range d.Steps {
			if err := requireAgent("step "+step.Name, step.Agent); err != nil {
				return err
			}
		}
	case TypeParallel:
		if len(d.Steps) == 0 {
			return invalid("parallel requires at least one branch")
		}
		seen := make(map[string]bool, len(d.Steps))
		for _, step := range d.Steps {
			if err := requireAgent("branch "+step.Name, step.Agent); err != nil {
				return err
			}
			// One agent is single-writer; concurrent branches must not share.
			if seen[step.Agent] {
				return invalid("agent %q used by more than one parallel branch", step.Agent)
			}
			seen[step.Agent] = true
		}
		if d.FanIn != "" && !resolves(d.FanIn) {
			return invalid("fan-in agent %q not registered", d.FanIn)
		}
	case TypeRouter:
		if err := requireAgent("classifier", d.Classifier); err != nil {
			return err
		}
		if len(d.Routes) == 0 {
			return invalid("router requires a route table")
		}
		for label, agentName := range d.Routes {
			if !resolves(agentName) {
				return invalid("route %q targets unregistered agent %q", label, agentName)
			}
		}
		if d.DefaultRoute != "" && !resolves(d.DefaultRoute) {
			return invalid("default route targets unregistered agent %q", d.DefaultRoute)
		}
	case TypeOrchestrator:
		if err := requireAgent("planner", d.Planner); err != nil {
			return err
		}
		if err := requireAgent("worker", d.Worker); err != nil {
			return err
		}
	case TypeEvaluatorOptimizer:
		if err := requireAgent("generator", d.Generator); err != nil {
			return err
		}
		if err := requireAgent("evaluator", d.Evaluator); err != nil {
			return err
		}
	default:
		return invalid("unknown workflow type %q", d.Type)
	}
	return nil
}
