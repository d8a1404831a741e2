// Package retry provides a uniform retry policy for fallible external calls.
// Errors are classified transient or permanent via the wrappers in this
// package; only transient failures are retried, with bounded exponential
// backoff. One external call gets one retry budget — callers must not stack
// Do around code that already retries internally.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Config holds retry behavior for a single external call.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the delay on each subsequent retry.
	BackoffMultiplier float64

	// MaxBackoff caps the computed delay.
	MaxBackoff time.Duration
}

// DefaultConfig returns the standard policy: three attempts with 1s, 2s
// delays between them, capped at 10s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}

// Backoff computes the delay after the given attempt (1-based). The delay
// grows exponentially and is capped at MaxBackoff before jitter, so the
// pre-jitter sequence is monotonically non-decreasing. Jitter of ±25%
// prevents synchronized retries across concurrent callers.
func Backoff(cfg Config, attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= cfg.BackoffMultiplier
	}

	backoff := time.Duration(float64(cfg.BackoffBase) * multiplier)
	if backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// Do executes op, retrying on transient errors up to cfg.MaxAttempts.
// Permanent errors (anything not wrapped transient) propagate immediately.
// After exhausting attempts the last error is returned. Each retry is
// preceded by a warning log carrying the attempt number and the error.
// The backoff sleep honors ctx cancellation.
func Do(ctx context.Context, cfg Config, logger *slog.Logger, label string, op func(context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}

		if attempt < cfg.MaxAttempts {
			backoff := Backoff(cfg, attempt)
			logger.Warn("transient failure, retrying",
				"call", label,
				"attempt", attempt,
				"max_attempts", cfg.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return lastErr
}
