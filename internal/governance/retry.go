package governance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrBudgetExceeded is returned when the total wall-clock budget for an
	// operation ran out before its attempts did.
	ErrBudgetExceeded = errors.New("retry budget exceeded")
)

// PermanentError marks an error that must not be retried. Retry loops stop
// immediately and return the wrapped error.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the retry policy treats it as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked non-retryable.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// RetryConfig defines retry behavior for upstream requests.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first (minimum 1).
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which backoff increases.
	BackoffMultiplier float64
	// Jitter adds randomness to backoff to prevent thundering herd.
	Jitter bool
	// Budget bounds the total wall clock for all attempts and backoffs.
	// Zero means unbounded.
	Budget time.Duration
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryPolicy executes operations with bounded retries.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy with the given configuration.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	return &RetryPolicy{config: config}
}

// Config returns a copy of the current retry configuration.
func (rp *RetryPolicy) Config() RetryConfig {
	return rp.config
}

// CalculateBackoff returns the delay before the retry following attempt
// (zero-based).
func (rp *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := time.Duration(float64(rp.config.InitialBackoff) * math.Pow(rp.config.BackoffMultiplier, float64(attempt)))

	if backoff > rp.config.MaxBackoff {
		backoff = rp.config.MaxBackoff
	}

	if rp.config.Jitter && backoff > 0 {
		// Up to 25% extra, non-cryptographic randomness is fine here.
		// #nosec G404
		backoff += time.Duration(rand.Int63n(int64(backoff/4) + 1))
	}

	return backoff
}

// Execute runs fn until it succeeds, returns a permanent error, exhausts
// MaxAttempts, or the budget or context expires. Budget expiry surfaces as
// ErrBudgetExceeded wrapping the last attempt's error.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if rp.config.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rp.config.Budget)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt < rp.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return rp.deadlineError(err, lastErr)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if IsPermanent(lastErr) {
			var pe *PermanentError
			errors.As(lastErr, &pe)
			return pe.Err
		}

		if attempt < rp.config.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return rp.deadlineError(ctx.Err(), lastErr)
			case <-time.After(rp.CalculateBackoff(attempt)):
			}
		}
	}

	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

func (rp *RetryPolicy) deadlineError(ctxErr, lastErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) && rp.config.Budget > 0 {
		if lastErr != nil {
			return fmt.Errorf("%w: %w", ErrBudgetExceeded, lastErr)
		}
		return ErrBudgetExceeded
	}
	return ctxErr
}
