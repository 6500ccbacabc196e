package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrRetriesExhausted is returned by [Retry] when every attempt failed with a
// retryable error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Outcome classifies the result of a single attempt.
type Outcome int

const (
	// OutcomeOK means the attempt succeeded.
	OutcomeOK Outcome = iota

	// OutcomeRetryable means the attempt failed but a fresh attempt may
	// succeed (transient network error, malformed model output, ...).
	OutcomeRetryable

	// OutcomeFatal means further attempts are pointless (cancelled context,
	// invalid request). Retry returns the error immediately.
	OutcomeFatal
)

// RetryConfig bounds a [Retry] loop.
type RetryConfig struct {
	// Name labels the operation in log messages.
	Name string

	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3.
	MaxAttempts int

	// Delay is the fixed pause between attempts. Default: 500ms.
	Delay time.Duration
}

// Retry runs fn up to cfg.MaxAttempts times. fn reports its own outcome: on
// [OutcomeOK] the value is returned, on [OutcomeFatal] the error is returned
// immediately, and on [OutcomeRetryable] the loop sleeps cfg.Delay and tries
// again. Each attempt's duration is logged at debug level.
//
// When all attempts are retryable failures, the returned error wraps
// [ErrRetriesExhausted] together with the last attempt's error.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, Outcome, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		start := time.Now()
		value, outcome, err := fn(ctx)
		elapsed := time.Since(start)

		switch outcome {
		case OutcomeOK:
			slog.Debug("attempt succeeded",
				"op", cfg.Name, "attempt", attempt, "elapsed", elapsed)
			return value, nil

		case OutcomeFatal:
			slog.Debug("attempt failed fatally",
				"op", cfg.Name, "attempt", attempt, "elapsed", elapsed, "error", err)
			return zero, err

		default:
			lastErr = err
			slog.Debug("attempt failed, will retry",
				"op", cfg.Name, "attempt", attempt, "max_attempts", cfg.MaxAttempts,
				"elapsed", elapsed, "error", err)
		}

		if attempt < cfg.MaxAttempts {
			timer := time.NewTimer(cfg.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, fmt.Errorf("%s: %w: %w", cfg.Name, ErrRetriesExhausted, lastErr)
}
