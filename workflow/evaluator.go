package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/weftworks/agentweave/core"
)

// DefaultAcceptScore is the acceptance threshold when the definition does
// not set one. Scores are on a 0.0 to 1.0 scale.
const DefaultAcceptScore = 0.9

// scorePrefix starts the first line of a well-formed evaluator reply, e.g.
// "SCORE: 0.8" followed by the critique.
const scorePrefix = "SCORE:"

// runEvaluatorOptimizer loops generator and evaluator: the generator
// produces a candidate, the evaluator scores it and critiques it, and the
// critique is fed back into the next generation. An accepted candidate ends
// the loop; at the iteration bound the best-scored candidate seen is
// returned as a degraded success, never an error.
func (e *Engine) runEvaluatorOptimizer(ctx context.Context, def Definition, ec *core.ExecutionContext) (string, error) {
	task, _ := ec.Get(InputKey)
	threshold := def.AcceptScore
	if threshold == 0 {
		threshold = DefaultAcceptScore
	}

	var (
		critique  string
		best      string
		bestScore = -1.0
	)

	for i := 0; i < def.maxIterations(); i++ {
		genInput := task
		if critique != "" {
			genInput = fmt.Sprintf("%s\n\nYour previous attempt was rejected with this critique:\n%s\n\nProduce an improved version.", task, critique)
		}

		candidate, err := e.invoke(ctx, def, fmt.Sprintf("generate_%d", i+1), def.Generator, genInput)
		if err != nil {
			return "", err
		}

		evalInput := fmt.Sprintf(
			"Task: %s\n\nCandidate:\n%s\n\nReply with %s <0.0-1.0> on the first line, then your critique.",
			task, candidate, scorePrefix)
		verdict, err := e.invoke(ctx, def, fmt.Sprintf("evaluate_%d", i+1), def.Evaluator, evalInput)
		if err != nil {
			return "", err
		}

		score, nextCritique := parseVerdict(verdict)
		e.logger.Debug("evaluation round",
			"workflow", def.Name, "round", i+1, "score", score)

		if score > bestScore {
			bestScore = score
			best = candidate
		}
		if score >= threshold {
			if err := recordRounds(ec, i+1, score); err != nil {
				return "", err
			}
			return candidate, nil
		}
		critique = nextCritique
	}

	// Bound reached: best candidate wins.
	if err := recordRounds(ec, def.maxIterations(), bestScore); err != nil {
		return "", err
	}
	return best, nil
}

func recordRounds(ec *core.ExecutionContext, rounds int, score float64) error {
	if err := ec.Set("rounds", strconv.Itoa(rounds)); err != nil {
		return err
	}
	return ec.Set("score", strconv.FormatFloat(score, 'f', -1, 64))
}

// parseVerdict extracts the score from the first line and returns the rest
// as critique. A malformed verdict scores zero with the full text as
// critique.
func parseVerdict(verdict string) (float64, string) {
	verdict = strings.TrimSpace(verdict)
	line, rest, _ := strings.Cut(verdict, "\n")
	line = strings.TrimSpace(line)

	upper := strings.ToUpper(line)
	if !strings.HasPrefix(upper, scorePrefix) {
		return 0, verdict
	}
	raw := strings.TrimSpace(line[len(scorePrefix):])
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, verdict
	}
	return score, strings.TrimSpace(rest)
}
