// Package retry provides retry utilities with exponential backoff and jitter for transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
)

var (
	// ErrMaxAttemptsExceeded is returned by Do when every attempt failed
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context is cancelled during retry
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// jitterFraction is the maximum share of the base delay added as random jitter.
const jitterFraction = 0.25

// Result is the outcome of an Execute call. Failures are reported here rather
// than as a separate error return so callers can inspect attempt counts.
type Result[T any] struct {
	Success  bool
	Data     T
	Err      error
	Attempts int
	Duration time.Duration
}

// Executor runs operations under a Policy.
type Executor struct {
	policy Policy
	clock  clock.Clock
	jitter func() float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock overrides the clock used for backoff sleeps and duration measurement.
func WithClock(clk clock.Clock) Option {
	return func(e *Executor) {
		e.clock = clk
	}
}

// WithJitter overrides the jitter source. fn must return a value in [0, 1).
func WithJitter(fn func() float64) Option {
	return func(e *Executor) {
		e.jitter = fn
	}
}

// NewExecutor creates an Executor for the given policy.
func NewExecutor(policy Policy, opts ...Option) *Executor {
	policy.setDefaults()
	e := &Executor{
		policy: policy,
		clock:  clock.New(),
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// BaseDelay returns the backoff delay after the given failed attempt, before jitter.
func (e *Executor) BaseDelay(attempt int) time.Duration {
	p := e.policy
	backoff := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(backoff)
}

// Delay returns the backoff delay after the given failed attempt, including jitter.
func (e *Executor) Delay(attempt int) time.Duration {
	base := e.BaseDelay(attempt)
	return base + time.Duration(float64(base)*jitterFraction*e.jitter())
}

// Execute runs op until it succeeds, fails with a non-retryable error, or runs out of attempts.
func Execute[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) Result[T] {
	start := e.clock.Now()
	var result Result[T]

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if ctx.Err() != nil {
			result.Err = fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			break
		}

		data, err := op(ctx)
		if err == nil {
			result.Success = true
			result.Data = data
			result.Err = nil
			break
		}
		result.Err = err

		if !e.policy.IsRetryable(err) || attempt == e.policy.MaxAttempts {
			break
		}

		if sleepErr := clock.Sleep(ctx, e.clock, e.Delay(attempt)); sleepErr != nil {
			result.Err = fmt.Errorf("%w: %w", ErrContextCancelled, errors.Join(sleepErr, err))
			break
		}
	}

	result.Duration = e.clock.Now().Sub(start)
	return result
}

// Do runs fn under the executor and returns a plain error. Exhausted retries
// are wrapped with ErrMaxAttemptsExceeded.
func Do(ctx context.Context, e *Executor, fn func(context.Context) error) error {
	res := Execute(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if res.Success {
		return nil
	}
	if res.Attempts == e.policy.MaxAttempts && e.policy.IsRetryable(res.Err) {
		return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, res.Attempts, res.Err)
	}
	return res.Err
}
