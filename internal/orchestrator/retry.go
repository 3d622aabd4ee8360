package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tunesync/internal/logging"
	"tunesync/internal/services"
)

// RetryPolicy bounds the attempts for one workflow step.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// Per-step policies. Insertion gets the most headroom because playlist
// mutation rate limits are the most common failure in practice.
var (
	searchRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: 1 * time.Second, Multiplier: 2, MaxDelay: 10 * time.Second}
	aiRetry     = RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}
	insertRetry = RetryPolicy{MaxAttempts: 10, BaseDelay: 2 * time.Second, Multiplier: 2, MaxDelay: 60 * time.Second}
)

// rateLimitBuffer pads a server-provided Retry-After hint so the retry
// lands comfortably after the window reopens.
const rateLimitBuffer = 5 * time.Second

// Delay returns the backoff before the attempt following the given 1-based
// attempt number, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay > p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// withRetry runs op under the policy, sleeping between attempts. A
// non-retryable error or an expired context ends the loop immediately. The
// per-attempt timeout is applied inside op, not here.
func (o *Orchestrator) withRetry(ctx context.Context, policy RetryPolicy, step string, op func(context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		cancel := func() {}
		if o.stepTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, o.stepTimeout)
		}
		lastErr = op(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !services.Retryable(lastErr) || attempt == attempts {
			break
		}

		delay := policy.Delay(attempt)
		if hint, ok := services.RetryAfter(lastErr); ok {
			delay = hint + rateLimitBuffer
		}
		o.logger.Warn("step attempt failed, retrying",
			logging.String("step", step),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(lastErr))
		if err := o.sleepFor(ctx, delay); err != nil {
			return err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return fmt.Errorf("%s: %w", step, lastErr)
}

func (o *Orchestrator) sleepFor(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if o.sleeper != nil {
		o.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
