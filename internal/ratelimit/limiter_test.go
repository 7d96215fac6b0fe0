package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/procurelink/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewLimiter(config.Config{})
	require.NoError(t, err)
	require.Nil(t, limiter)

	res, err := limiter.AllowEvent(context.Background(), "role:producer")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.False(t, limiter.Enabled())
	assert.Nil(t, limiter.Locker())
}

func TestNewLimiterRejectsBadLimits(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, EventRate: 0, EventBurst: 10}}
	_, err := NewLimiter(cfg)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	cfg.RateLimit.EventRate = 5
	_, err = NewLimiter(cfg)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTokenBucketValidatesInput(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNilLockerReleaseIsNoop(t *testing.T) {
	var locker *Locker
	_, ok, err := locker.TryLock(context.Background(), "job", time.Second)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, ok)
	assert.NoError(t, locker.Release(context.Background(), "job", "token"))
}

func TestParseBucketReply(t *testing.T) {
	tests := []struct {
		name       string
		reply      []any
		allowed    bool
		remaining  int
		retryAfter time.Duration
	}{
		{
			name:      "allowed with fractional tokens",
			reply:     []any{int64(1), "3.5", int64(1700000000000)},
			allowed:   true,
			remaining: 3,
		},
		{
			name:       "denied waits for the missing fraction",
			reply:      []any{int64(0), "0.5", int64(1700000000000)},
			allowed:    false,
			remaining:  0,
			retryAfter: 250 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseBucketReply(tt.reply, 2, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, res.Allowed)
			assert.Equal(t, tt.remaining, res.Remaining)
			assert.Equal(t, 10, res.Limit)
			assert.Equal(t, tt.retryAfter, res.RetryAfter)
			assert.Equal(t, time.UnixMilli(1700000000000).Add(tt.retryAfter), res.ResetTime)
		})
	}

	_, err := parseBucketReply([]any{int64(1)}, 1, 1)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 40*time.Second, bucketTTL(5, 100))
	assert.Equal(t, time.Second, bucketTTL(1000, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))
}
