// Package retry provides a generic retry wrapper with exponential
// backoff and permanent-error classification. Operations that fail with
// a permanent error (validation, duplicates, authorization) return
// immediately; transient failures (timeouts, connection errors) are
// retried up to the configured limit.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Options controls the retry behavior for a single Do call.
type Options struct {
	// MaxRetries is the number of attempts after the first. Zero means
	// the operation runs exactly once.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// Exponential doubles the delay after each retry when true;
	// otherwise the delay is constant.
	Exponential bool

	// MaxDelay caps the per-retry delay. Zero means no cap.
	MaxDelay time.Duration

	// OnRetry, if set, is called before each retry with the attempt
	// number just failed (1-based) and the error that caused it.
	OnRetry func(attempt int, err error)
}

// DefaultOptions matches the production provisioning defaults: three
// total attempts with exponential backoff starting at two seconds.
func DefaultOptions() Options {
	return Options{
		MaxRetries:  2,
		BaseDelay:   2 * time.Second,
		Exponential: true,
		MaxDelay:    60 * time.Second,
	}
}

// Do runs op until it succeeds, fails permanently, exhausts the retry
// budget, or ctx is done. The returned value is the result of the last
// attempt. Context cancellation between attempts returns ctx.Err()
// wrapped with the last operation error for diagnosis.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	var zero T
	delay := opts.BaseDelay

	var lastErr error
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return zero, err
		}
		if attempt > opts.MaxRetries {
			return zero, fmt.Errorf("operation failed after %d attempts: %w", attempt, err)
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}

		wait := delay
		if opts.MaxDelay > 0 && wait > opts.MaxDelay {
			wait = opts.MaxDelay
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted: %w (last error: %v)", ctx.Err(), lastErr)
		case <-time.After(wait):
		}

		if opts.Exponential {
			delay *= 2
		}
	}
}

// DoVoid is Do for operations without a result.
func DoVoid(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts)
	return err
}
