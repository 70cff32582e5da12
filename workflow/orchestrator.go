package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/weftworks/agentweave/core"
)

// DoneMarker is the prefix a planner emits to signal the goal is reached.
// Text after the marker becomes the run output.
const DoneMarker = "DONE"

// runOrchestrator alternates planner and worker: the planner proposes the
// next sub-task given the goal and everything done so far; the worker
// executes it. The loop ends when the planner signals completion or the
// iteration bound is reached, the latter reported as
// ORCHESTRATION_EXHAUSTED.
func (e *Engine) runOrchestrator(ctx context.Context, def Definition, ec *core.ExecutionContext) (string, error) {
	goal, _ := ec.Get(InputKey)
	var transcript strings.Builder

	for i := 0; i < def.maxIterations(); i++ {
		plannerInput := fmt.Sprintf(
			"Goal: %s\n\nCompleted so far:\n%s\nPropose the next sub-task, or reply %s <final answer> if the goal is reached.",
			goal, transcriptOrNone(&transcript), DoneMarker)

		plan, err := e.invoke(ctx, def, fmt.Sprintf("plan_%d", i+1), def.Planner, plannerInput)
		if err != nil {
			return "", err
		}
		plan = strings.TrimSpace(plan)

		if answer, done := strings.CutPrefix(plan, DoneMarker); done {
			answer = strings.TrimSpace(answer)
			e.logger.Debug("orchestrator complete", "workflow", def.Name, "iterations", i)
			if err := ec.Set("iterations", fmt.Sprintf("%d", i)); err != nil {
				return "", err
			}
			return answer, nil
		}

		result, err := e.invoke(ctx, def, fmt.Sprintf("work_%d", i+1), def.Worker, plan)
		if err != nil {
			return "", err
		}

		fmt.Fprintf(&transcript, "- task: %s\n  result: %s\n", plan, result)
		if err := ec.Set(fmt.Sprintf("task_%d", i+1), result); err != nil {
			return "", err
		}
	}

	return "", core.Errorf(core.ErrOrchestrationExhausted,
		"planner did not signal completion within %d iterations", def.maxIterations()).WithAgent(def.Planner)
}

func transcriptOrNone(b *strings.Builder) string {
	if b.Len() == 0 {
		return "(nothing yet)\n"
	}
	return b.String()
}
