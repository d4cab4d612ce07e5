// Package retry wraps outbound calls with bounded attempts, exponential
// backoff with jitter, and a total-timeout ceiling. Only errors on the
// policy's allow-list are retried; everything else propagates immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"skinarb/internal/domain"
)

// Policy controls how Execute treats failures.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	JitterFraction float64 // 0.2 means each delay is scaled by 1 ± 0.2
	TotalTimeout   time.Duration
	// Retryable is the allow-list of failure kinds, matched with errors.Is.
	Retryable []error
	// Disabled short-circuits to a single attempt with zero delay. Used to
	// make failure-path tests deterministic.
	Disabled bool
}

// DefaultRetryable is the standard allow-list: quota exhaustion and
// transient network failures.
func DefaultRetryable() []error {
	return []error{domain.ErrRateLimitExceeded, domain.ErrTransientNetwork}
}

// ExhaustedError is returned when every attempt failed with a retryable
// error. It unwraps to the last underlying cause.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %d attempts exhausted: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Operation is one outbound call. It must honor ctx cancellation.
type Operation func(ctx context.Context) error

// Controller executes operations under a Policy.
type Controller struct {
	policy Policy
	logger *slog.Logger
}

// New validates the policy and creates a Controller.
func New(policy Policy, logger *slog.Logger) (*Controller, error) {
	if !policy.Disabled {
		if policy.MaxAttempts < 1 {
			return nil, fmt.Errorf("retry: max attempts must be >= 1: %w", domain.ErrInvalidConfig)
		}
		if policy.BaseDelay < 0 || policy.Multiplier < 1 {
			return nil, fmt.Errorf("retry: base delay must be >= 0 and multiplier >= 1: %w", domain.ErrInvalidConfig)
		}
		if policy.JitterFraction < 0 || policy.JitterFraction >= 1 {
			return nil, fmt.Errorf("retry: jitter fraction must be in [0, 1): %w", domain.ErrInvalidConfig)
		}
	}
	return &Controller{
		policy: policy,
		logger: logger.With(slog.String("component", "retry")),
	}, nil
}

// Execute runs op until it succeeds, fails with a non-retryable error, runs
// out of attempts, or the total timeout elapses. Caller cancellation is
// never retried. name is used only for logging.
func (c *Controller) Execute(ctx context.Context, name string, op Operation) error {
	if c.policy.Disabled {
		return op(ctx)
	}

	if c.policy.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.TotalTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, attempt); err != nil {
				// Timed out or canceled while backing off; surface the last
				// operation error as the cause.
				return &ExhaustedError{Attempts: attempt - 1, Err: lastErr}
			}
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				c.logger.Debug("operation recovered",
					slog.String("operation", name),
					slog.Int("attempts", attempt),
				)
			}
			return nil
		}
		lastErr = err

		// Caller cancellation propagates immediately, regardless of how the
		// operation classified its failure.
		if ctx.Err() != nil {
			return fmt.Errorf("retry: %s: %w", name, ctx.Err())
		}
		if !c.retryable(err) {
			return err
		}

		c.logger.Debug("retryable failure",
			slog.String("operation", name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	return &ExhaustedError{Attempts: c.policy.MaxAttempts, Err: lastErr}
}

// retryable reports whether err matches the policy allow-list.
func (c *Controller) retryable(err error) bool {
	for _, kind := range c.policy.Retryable {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// sleep blocks for the backoff delay before the given attempt:
// BaseDelay * Multiplier^(attempt-2), scaled by 1 ± JitterFraction and capped
// by the remaining total timeout.
func (c *Controller) sleep(ctx context.Context, attempt int) error {
	delay := c.policy.BaseDelay
	for i := 2; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.policy.Multiplier)
	}

	if jf := c.policy.JitterFraction; jf > 0 && delay > 0 {
		// Uniform in [1-jf, 1+jf).
		factor := 1 - jf + 2*jf*rand.Float64()
		delay = time.Duration(float64(delay) * factor)
	}

	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		// The deadline may have passed before the context's timer fired;
		// report it rather than retrying with zero delay.
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		if delay > remaining {
			delay = remaining
		}
	}
	if delay <= 0 {
		return nil
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
