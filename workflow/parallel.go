package workflow

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/weftworks/agentweave/core"
)

// runParallel fans the input out to every branch concurrently, one goroutine
// per branch. Branch outcomes are recorded in declared step order regardless
// of completion order. By default all branches run to completion and
// failures stay inside their BranchResult; with FailFast the first failure
// cancels the siblings and aborts the run.
func (e *Engine) runParallel(ctx context.Context, def Definition, ec *core.ExecutionContext) (string, []BranchResult, error) {
	runInput, _ := ec.Get(InputKey)
	branches := make([]BranchResult, len(def.Steps))

	g, gctx := errgroup.WithContext(ctx)
	for i, step := range def.Steps {
		g.Go(func() error {
			input, err := stepInput(ec, step.InputKey, runInput)
			var output string
			if err == nil {
				output, err = e.invoke(gctx, def, step.Name, step.Agent, input)
			} else {
				err = stamp(err, step.Name, step.Agent)
			}
			branches[i] = BranchResult{Step: step.Name, Agent: step.Agent, Output: output, Err: err}
			if err != nil && def.FailFast {
				return err
			}
			return nil
		})
	}
	failFastErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return "", branches, core.Errorf(core.ErrCancelled, "run cancelled").WithCause(err)
	}
	if def.FailFast && failFastErr != nil {
		return "", branches, failFastErr
	}

	// Writes happen after fan-in completes collection, in declared order, so
	// the context content is deterministic under any completion order.
	for i, step := range def.Steps {
		if branches[i].Err != nil {
			continue
		}
		if err := ec.Set(step.outputKey(), branches[i].Output); err != nil {
			return "", branches, stamp(err, step.Name, step.Agent)
		}
	}

	if def.FanIn == "" {
		return "", branches, nil
	}

	composed := composeFanInInput(branches)
	output, err := e.invoke(ctx, def, "fan_in", def.FanIn, composed)
	return output, branches, err
}

// composeFanInInput renders the branch outcomes, in declared order, as the
// aggregator's input.
func composeFanInInput(branches []BranchResult) string {
	var b strings.Builder
	for _, br := range branches {
		fmt.Fprintf(&b, "### %s\n", br.Step)
		if br.Err != nil {
			fmt.Fprintf(&b, "error: %v\n\n", br.Err)
			continue
		}
		fmt.Fprintf(&b, "%s\n\n", br.Output)
	}
	return strings.TrimRight(b.String(), "\n")
}
