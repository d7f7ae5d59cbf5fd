package errors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return ProviderError("transient", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return ValidationError("dimension mismatch", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsValidation(err))
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return ProviderError("still down", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial + 3 retries
	assert.True(t, IsProviderUnavailable(err))
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(), func() error {
		return ProviderError("down", nil)
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func() ([]float32, error) {
		attempts++
		if attempts < 2 {
			return nil, ProviderError("transient", nil)
		}
		return []float32{1, 2, 3}, nil
	})

	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("embed", WithMaxFailures(2), WithResetTimeout(time.Hour))

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.False(t, cb.Allow())
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("embed", WithMaxFailures(1), WithResetTimeout(time.Millisecond))
	cb.RecordFailure()

	assert.Eventually(t, func() bool {
		return cb.State() == StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb := NewCircuitBreaker("embed", WithMaxFailures(1), WithResetTimeout(time.Hour))

	require.Error(t, cb.Execute(func() error { return ProviderError("down", nil) }))
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}
