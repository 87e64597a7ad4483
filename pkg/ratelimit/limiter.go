// Package ratelimit implements a per-tenant token bucket executed
// atomically in Redis. The two-key state update runs inside a single Lua
// script, so concurrent callers never interleave a read-modify-write.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/commercekit/intent-engine/pkg/apperrors"
)

// StateTTL is how long idle bucket state lives in Redis. An evicted
// tenant re-initializes to a full bucket on next use — intentional.
const StateTTL = 120 * time.Second

// tokenBucketScript refills the bucket from elapsed time, then either
// consumes the requested tokens or reports the wait until enough refill.
// Keys: [tokens, last_update]. Args: [rate_per_sec, burst, n, now].
var tokenBucketScript = redis.NewScript(`
local key_tokens = KEYS[1]
local key_last_update = KEYS[2]
local rate_per_sec = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local tokens = tonumber(redis.call('GET', key_tokens)) or burst
local last_update = tonumber(redis.call('GET', key_last_update)) or now

local elapsed = now - last_update
if elapsed < 0 then
    elapsed = 0
end
tokens = math.min(burst, tokens + elapsed * rate_per_sec)

if tokens >= requested then
    tokens = tokens - requested
    redis.call('SET', key_tokens, tokens, 'EX', 120)
    redis.call('SET', key_last_update, now, 'EX', 120)
    return {1, tostring(tokens), '0'}
end

local wait = (requested - tokens) / rate_per_sec
return {0, tostring(tokens), tostring(wait)}
`)

// Result reports the outcome of one admission check.
type Result struct {
	Allowed    bool
	Remaining  float64
	Limit      int
	RetryAfter time.Duration
}

// Limiter is a Redis-backed token bucket, one bucket per tenant.
type Limiter struct {
	client       redis.UniversalClient
	defaultRate  int
	defaultBurst int
}

// NewLimiter creates a limiter with fallback rate/burst used when the
// caller passes no tenant-specific limits.
func NewLimiter(client redis.UniversalClient, defaultRate, defaultBurst int) *Limiter {
	return &Limiter{client: client, defaultRate: defaultRate, defaultBurst: defaultBurst}
}

func keyTokens(tenantID string) string     { return "rate_limit:" + tenantID + ":tokens" }
func keyLastUpdate(tenantID string) string { return "rate_limit:" + tenantID + ":last_update" }

// Allow consumes n tokens from the tenant's bucket if available. It
// never blocks waiting for tokens: a denial returns a RATE_LIMITED error
// carrying the retry hint, alongside the Result for callers that want
// the remaining count.
func (l *Limiter) Allow(ctx context.Context, tenantID string, rate, burst, n int) (Result, error) {
	if rate <= 0 {
		rate = l.defaultRate
	}
	if burst <= 0 {
		burst = l.defaultBurst
	}
	ratePerSec := float64(rate) / 60.0
	now := float64(time.Now().UnixNano()) / float64(time.Second)

	raw, err := tokenBucketScript.Run(ctx, l.client,
		[]string{keyTokens(tenantID), keyLastUpdate(tenantID)},
		ratePerSec, burst, n, now,
	).Slice()
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "rate limit store", err)
	}
	if len(raw) != 3 {
		return Result{}, apperrors.Newf(apperrors.KindInternal, "rate limit script returned %d values", len(raw))
	}

	allowed := toInt64(raw[0]) == 1
	remaining := toFloat(raw[1])
	wait := toFloat(raw[2])

	result := Result{
		Allowed:    allowed,
		Remaining:  remaining,
		Limit:      rate,
		RetryAfter: time.Duration(wait * float64(time.Second)),
	}
	if !allowed {
		slog.Warn("Rate limit exceeded",
			"tenant_id", tenantID, "limit", rate, "remaining", remaining, "retry_after", result.RetryAfter)
		return result, apperrors.RateLimited(
			fmt.Sprintf("rate limit exceeded for tenant %s (%d/min)", tenantID, rate),
			result.RetryAfter,
		)
	}
	return result, nil
}

// Usage reports the tenant's current remaining tokens without consuming
// any.
func (l *Limiter) Usage(ctx context.Context, tenantID string, burst int) (float64, error) {
	if burst <= 0 {
		burst = l.defaultBurst
	}
	val, err := l.client.Get(ctx, keyTokens(tenantID)).Float64()
	if err == redis.Nil {
		return float64(burst), nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "rate limit store", err)
	}
	return val, nil
}

// Reset deletes the tenant's bucket state; the next request sees a full
// bucket.
func (l *Limiter) Reset(ctx context.Context, tenantID string) error {
	if err := l.client.Del(ctx, keyTokens(tenantID), keyLastUpdate(tenantID)).Err(); err != nil {
		return apperrors.Wrap(apperrors.KindUpstreamUnavailable, "resetting rate limit", err)
	}
	slog.Info("Rate limit reset", "tenant_id", tenantID)
	return nil
}

// Ping reports whether the backing store is reachable.
func (l *Limiter) Ping(ctx context.Context) bool {
	return l.client.Ping(ctx).Err() == nil
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case string:
		if x == "1" {
			return 1
		}
	}
	return 0
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case string:
		var f float64
		_, _ = fmt.Sscanf(x, "%g", &f)
		return f
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}
