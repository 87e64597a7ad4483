package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/intent-engine/pkg/apperrors"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLimiter(client, 60, 15), mr
}

func TestAllowBurstThenDeny(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	// FREE tier: 20 rpm, burst 5. The first five requests in one second
	// pass, the sixth is denied with a positive retry hint.
	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "tenant-free", 20, 5, 1)
		require.NoError(t, err, "request %d should be allowed", i+1)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "tenant-free", 20, 5, 1)
	require.Error(t, err)
	assert.False(t, result.Allowed)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRateLimited))
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.Greater(t, apperrors.RetryAfterOf(err), time.Duration(0))
}

func TestAllowMultiTokenConsumption(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	// A reasoning-path call costs 3 tokens: a burst of 5 admits one full
	// call (1+2) plus one more admission before running dry.
	_, err := limiter.Allow(ctx, "tenant-a", 60, 5, 3)
	require.NoError(t, err)
	result, err := limiter.Allow(ctx, "tenant-a", 60, 5, 3)
	require.Error(t, err)
	assert.False(t, result.Allowed)
	assert.InDelta(t, 2.0, result.Remaining, 0.2)
}

func TestDenialRetryAfterMatchesShortfall(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	// Drain the bucket completely.
	_, err := limiter.Allow(ctx, "tenant-b", 60, 10, 10)
	require.NoError(t, err)

	// Needing 1 token at 60 rpm means roughly a 1 s wait.
	result, err := limiter.Allow(ctx, "tenant-b", 60, 10, 1)
	require.Error(t, err)
	assert.InDelta(t, 1.0, result.RetryAfter.Seconds(), 0.2)
}

func TestTenantsAreIsolated(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "tenant-x", 20, 1, 1)
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, "tenant-x", 20, 1, 1)
	require.Error(t, err)

	// A different tenant still has a full bucket.
	result, err := limiter.Allow(ctx, "tenant-y", 20, 1, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestResetRestoresBucket(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "tenant-c", 20, 2, 2)
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, "tenant-c", 20, 2, 1)
	require.Error(t, err)

	require.NoError(t, limiter.Reset(ctx, "tenant-c"))

	result, err := limiter.Allow(ctx, "tenant-c", 20, 2, 1)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestStateCarriesTTL(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "tenant-d", 60, 5, 1)
	require.NoError(t, err)

	ttl := mr.TTL("rate_limit:tenant-d:tokens")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, StateTTL)
}

func TestUsageWithoutState(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	remaining, err := limiter.Usage(context.Background(), "fresh-tenant", 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, remaining)
}

func TestUsageAfterConsumption(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "tenant-e", 60, 10, 4)
	require.NoError(t, err)

	remaining, err := limiter.Usage(ctx, "tenant-e", 10)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, remaining, 0.2)
}

func TestDefaultsApplyWhenUnset(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	result, err := limiter.Allow(context.Background(), "tenant-f", 0, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 60, result.Limit)
}
