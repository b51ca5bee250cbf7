package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackr-io/stackr/internal/provider"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryTransient_SucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	err := RetryTransient(context.Background(), fastPolicy(3), func() error {
		attempts++
		if attempts < 3 {
			return provider.Transient("create", "null_resource", errors.New("throttled"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryTransient_PermanentErrorReturnsImmediately(t *testing.T) {
	attempts := 0
	boom := provider.Permanent("create", "null_resource", errors.New("access denied"))
	err := RetryTransient(context.Background(), fastPolicy(3), func() error {
		attempts++
		return boom
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, boom)
}

func TestRetryTransient_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := RetryTransient(context.Background(), fastPolicy(2), func() error {
		attempts++
		return provider.Transient("create", "null_resource", errors.New("throttled"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
	assert.Contains(t, err.Error(), "max retries")
	assert.True(t, provider.IsTransient(err))
}

func TestRetryTransient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryTransient(ctx, fastPolicy(5), func() error {
		return provider.Transient("create", "null_resource", errors.New("throttled"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff_CappedAndJittered(t *testing.T) {
	base := 100 * time.Millisecond
	max := 400 * time.Millisecond

	for attempt := 0; attempt < 10; attempt++ {
		d := backoff(attempt, base, max)
		assert.LessOrEqual(t, d, max)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}

	// High attempts stay at the cap, between half and full.
	d := backoff(8, base, max)
	assert.GreaterOrEqual(t, d, max/2)
	assert.LessOrEqual(t, d, max)
}
