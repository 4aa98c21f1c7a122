package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arvalo/arvalo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(retries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context, int) error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_RetryableThenSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	var attempts []int
	err := retryer.Do(context.Background(), func(_ context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return types.NewRateLimitError("slow down")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestBackoffRetryer_NonRetryableFailsFast(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(5), zap.NewNop())

	callCount := 0
	bad := types.NewInvalidRequestError("bad tool schema")
	err := retryer.Do(context.Background(), func(context.Context, int) error {
		callCount++
		return bad
	})

	require.Error(t, err)
	assert.Equal(t, 1, callCount)
	assert.True(t, errors.Is(err, bad))
}

func TestBackoffRetryer_Exhausted(t *testing.T) {
	var retried []int
	policy := fastPolicy(2)
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) {
		retried = append(retried, attempt)
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context, int) error {
		callCount++
		return types.NewUpstreamError("502")
	})

	require.Error(t, err)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
}

func TestBackoffRetryer_ContextCanceled(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = time.Second
	policy.MaxDelay = time.Second
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0
	err := retryer.Do(ctx, func(context.Context, int) error {
		callCount++
		cancel()
		return types.NewTimeoutError("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 1, callCount)
}

func TestDefaultRetryable(t *testing.T) {
	assert.False(t, DefaultRetryable(nil))
	assert.False(t, DefaultRetryable(context.Canceled))
	assert.True(t, DefaultRetryable(context.DeadlineExceeded))
	assert.True(t, DefaultRetryable(types.NewRateLimitError("x")))
	assert.False(t, DefaultRetryable(errors.New("plain")))
}

func TestDoWithResult(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(1), nil)

	v, err := DoWithResult(context.Background(), retryer, func(_ context.Context, attempt int) (int, error) {
		if attempt == 0 {
			return 0, types.NewTimeoutError("slow")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = DoWithResult(context.Background(), retryer, func(context.Context, int) (string, error) {
		return "", errors.New("boom")
	})
	assert.Error(t, err)
}

func TestCalculateDelay_Capped(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{
		MaxRetries:   10,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2,
	}, nil).(*backoffRetryer)

	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 40*time.Millisecond, r.calculateDelay(5))
}
