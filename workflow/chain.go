package workflow

import (
	"context"

	"github.com/weftworks/agentweave/core"
)

// runChain executes steps strictly in order, wiring each step's output into
// the next step's input. The first failure aborts the run with the failing
// step's identity; later steps are never invoked.
func (e *Engine) runChain(ctx context.Context, def Definition, ec *core.ExecutionContext) (string, error) {
	carried, _ := ec.Get(InputKey)

	var output string
	for i, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			return "", core.Errorf(core.ErrCancelled, "run cancelled").WithStep(step.Name).WithCause(err)
		}

		fallback := carried
		if i > 0 {
			fallback = output
		}
		input, err := stepInput(ec, step.InputKey, fallback)
		if err != nil {
			return "", stamp(err, step.Name, step.Agent)
		}

		e.logger.Debug("chain step", "workflow", def.Name, "step", step.Name, "agent", step.Agent)
		output, err = e.invoke(ctx, def, step.Name, step.Agent, input)
		if err != nil {
			return "", err
		}

		if err := ec.Set(step.outputKey(), output); err != nil {
			return "", stamp(err, step.Name, step.Agent)
		}
	}
	return output, nil
}
