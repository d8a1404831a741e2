package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/c360studio/scout/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig keeps test retries in the millisecond range.
func fastConfig() retry.Config {
	return retry.Config{
		MaxAttempts:       3,
		BackoffBase:       1 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Millisecond,
	}
}

func TestDo_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastConfig(), nil, "flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return retry.NewTransientError(errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentNotRetried(t *testing.T) {
	calls := 0
	permanent := errors.New("missing required field")
	err := retry.Do(context.Background(), fastConfig(), nil, "validate", func(context.Context) error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, permanent, err)
}

func TestDo_FatalWrapperNotRetried(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastConfig(), nil, "auth", func(context.Context) error {
		calls++
		return retry.NewFatalError(errors.New("invalid API key"))
	})

	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), fastConfig(), nil, "down", func(context.Context) error {
		calls++
		return retry.NewTransientError(fmt.Errorf("attempt %d timed out", calls))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "attempt 3")
	assert.True(t, retry.IsTransient(err))
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	cfg := retry.Config{
		MaxAttempts:       3,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	err := retry.Do(ctx, cfg, nil, "slow", func(context.Context) error {
		calls++
		return retry.NewTransientError(errors.New("timeout"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	cfg := retry.Config{
		MaxAttempts:       5,
		BackoffBase:       1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}

	// Jitter is ±25%, so check against the pre-jitter value with tolerance.
	expected := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for i, want := range expected {
		got := retry.Backoff(cfg, i+1)
		assert.GreaterOrEqual(t, got, time.Duration(float64(want)*0.74), "attempt %d", i+1)
		assert.LessOrEqual(t, got, time.Duration(float64(want)*1.26), "attempt %d", i+1)
	}
}

func TestClassification(t *testing.T) {
	base := errors.New("boom")

	transient := retry.NewTransientError(base)
	assert.True(t, retry.IsTransient(transient))
	assert.False(t, retry.IsFatal(transient))
	assert.ErrorIs(t, transient, base)

	fatal := retry.NewFatalError(base)
	assert.True(t, retry.IsFatal(fatal))
	assert.False(t, retry.IsTransient(fatal))
	assert.ErrorIs(t, fatal, base)

	// Wrapping preserves classification through the chain.
	wrapped := fmt.Errorf("fetch quote: %w", retry.NewTransientError(base))
	assert.True(t, retry.IsTransient(wrapped))

	// Unclassified errors are neither.
	assert.False(t, retry.IsTransient(base))
	assert.False(t, retry.IsFatal(base))
}
