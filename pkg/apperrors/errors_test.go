package apperrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindValidation, "empty input")
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestIsKindThroughWrapping(t *testing.T) {
	inner := New(KindRateLimited, "slow down")
	wrapped := fmt.Errorf("admission failed: %w", inner)
	assert.True(t, IsKind(wrapped, KindRateLimited))
	assert.False(t, IsKind(wrapped, KindValidation))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstreamUnavailable, "vector store", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UPSTREAM_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := RateLimited("limit reached", 3*time.Second)
	assert.Equal(t, 3*time.Second, RetryAfterOf(err))
	assert.True(t, IsKind(err, KindRateLimited))

	assert.Zero(t, RetryAfterOf(errors.New("plain")))
}

func TestBackpressureCarriesRetryAfter(t *testing.T) {
	err := Backpressure("queue full", 30*time.Second)
	assert.Equal(t, 30*time.Second, RetryAfterOf(err))
	assert.True(t, IsKind(err, KindBatchBackpressure))
}
