// Package retry executes operations under an exponential-backoff policy and
// reports the outcome with attempt and timing detail, so callers can feed
// job metrics and error records without re-deriving them.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default policy values.
const (
	// DefaultMaxAttempts bounds how often an operation runs.
	DefaultMaxAttempts = 5

	// DefaultInitialDelay is the backoff before the second attempt.
	DefaultInitialDelay = time.Second

	// DefaultMultiplier is the exponential growth factor between attempts.
	DefaultMultiplier = 2.0

	// DefaultMaxDelay caps a single backoff pause.
	DefaultMaxDelay = 60 * time.Second
)

// Policy tunes retry behavior.
type Policy struct {
	// MaxAttempts bounds how often the operation runs. Values below 1
	// behave as 1.
	MaxAttempts int

	// InitialDelay is the pause after the first failed attempt.
	InitialDelay time.Duration

	// Multiplier grows the pause between consecutive attempts.
	Multiplier float64

	// MaxDelay caps the computed pause.
	MaxDelay time.Duration

	// Jitter draws the actual pause uniformly from [0, computed].
	Jitter bool

	// Retryable decides whether a failure is worth another attempt.
	// Nil retries every failure.
	Retryable func(error) bool
}

// DefaultPolicy returns the standard tuning: 5 attempts, 1s initial delay,
// doubling per attempt, 60s cap, jitter on.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
		MaxDelay:     DefaultMaxDelay,
		Jitter:       true,
	}
}

// DelayFor returns the computed pause after attempt n (0-based), before
// jitter: min(InitialDelay × Multiplier^n, MaxDelay).
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 0 || p.InitialDelay <= 0 {
		return 0
	}

	scaled := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && scaled > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(scaled)
}

// Result reports the outcome of a retried operation.
type Result[T any] struct {
	// Success is true when some attempt returned without error.
	Success bool

	// Value is the successful attempt's result.
	Value T

	// Err is the final failure: the last attempt's error, or the context
	// error when the wait was cut short.
	Err error

	// Attempts counts how many times the operation ran.
	Attempts int

	// TotalTime spans all attempts including backoff pauses.
	TotalTime time.Duration
}

// Op is the operation under retry.
type Op[T any] func(ctx context.Context) (T, error)

// Execute runs op under the policy until it succeeds, exhausts its
// attempts, fails permanently per policy.Retryable, or ctx is done.
func Execute[T any](ctx context.Context, policy Policy, op Op[T]) Result[T] {
	start := time.Now()

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var res Result[T]

	for attempt := range maxAttempts {
		res.Attempts++

		value, opErr := op(ctx)
		if opErr == nil {
			res.Success = true
			res.Value = value
			res.Err = nil
			res.TotalTime = time.Since(start)

			return res
		}

		res.Err = opErr

		if policy.Retryable != nil && !policy.Retryable(opErr) {
			break
		}

		if attempt == maxAttempts-1 {
			break
		}

		if waitErr := sleep(ctx, policy.pause(attempt)); waitErr != nil {
			res.Err = waitErr

			break
		}
	}

	res.TotalTime = time.Since(start)

	return res
}

// pause applies jitter to the computed delay for the given attempt.
func (p Policy) pause(attempt int) time.Duration {
	delay := p.DelayFor(attempt)
	if !p.Jitter || delay <= 0 {
		return delay
	}

	return time.Duration(rand.Int64N(int64(delay) + 1))
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
