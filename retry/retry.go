// Package retry provides a deterministic, error-only retry wrapper for model
// calls and arbitrary step functions. Retries never fire on context
// cancellation; backoff is fixed, not jittered, so behavior is reproducible.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/weftworks/agentweave/core"
	"github.com/weftworks/agentweave/model"
)

// Config controls retry behavior.
type Config struct {
	// MaxAttempts including the first call. Values below 1 behave as 1.
	MaxAttempts int
	// Backoff is the fixed delay between attempts. Zero means immediate.
	Backoff time.Duration
	// ShouldRetry decides per error. Nil retries everything except
	// cancellation, deadline expiry, and non-transient framework errors.
	ShouldRetry func(error) bool
}

// Do runs fn with the configured retry policy and returns the last error
// when all attempts fail.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	attempts := normalizedAttempts(cfg.MaxAttempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == attempts || !shouldRetry(ctx, cfg, err) {
			break
		}
		if cfg.Backoff > 0 {
			select {
			case <-time.After(cfg.Backoff):
			case <-ctx.Done():
				return zero, lastErr
			}
		}
	}
	return zero, lastErr
}

// WrapModel wraps a model with the retry policy.
func WrapModel(m model.Model, cfg Config) model.Model {
	if m == nil {
		return nil
	}
	return &modelWrapper{next: m, cfg: cfg}
}

type modelWrapper struct {
	next model.Model
	cfg  Config
}

func (w *modelWrapper) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	return Do(ctx, w.cfg, func(ctx context.Context) (*model.Response, error) {
		return w.next.Generate(ctx, req)
	})
}

func (w *modelWrapper) Info() model.Info { return w.next.Info() }

func normalizedAttempts(maxAttempts int) int {
	if maxAttempts < 1 {
		return 1
	}
	return maxAttempts
}

func shouldRetry(ctx context.Context, cfg Config, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if cfg.ShouldRetry != nil {
		return cfg.ShouldRetry(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch core.CodeOf(err) {
	case core.ErrCancelled, core.ErrCapabilityMismatch, core.ErrInvalidDefinition,
		core.ErrOutputKeyCollision, core.ErrToolLoopExceeded:
		// Deterministic failures; retrying cannot change the outcome.
		return false
	}
	return true
}
