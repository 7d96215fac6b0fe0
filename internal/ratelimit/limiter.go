package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/procurelink/internal/config"
)

const (
	keyEventIngest = "procurelink:ratelimit:events:"
	keyLockPrefix  = "procurelink:lock:"
)

// Limiter throttles event ingestion per producer and owns the lease
// locker shared by scheduler instances. A nil or disabled Limiter allows
// everything.
type Limiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	eventRate  float64
	eventBurst int
}

func NewLimiter(cfg config.Config) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if limitCfg.EventRate <= 0 || limitCfg.EventBurst <= 0 {
		return nil, ErrInvalidLimit
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, ErrNotConfigured
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return newLimiter(client, limitCfg.EventRate, limitCfg.EventBurst), nil
}

func newLimiter(client redis.UniversalClient, rate float64, burst int) *Limiter {
	return &Limiter{
		enabled:    true,
		bucket:     NewTokenBucket(client),
		locker:     NewLocker(client, keyLockPrefix),
		eventRate:  rate,
		eventBurst: burst,
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowEvent takes one token from the producer's ingest bucket.
func (l *Limiter) AllowEvent(ctx context.Context, producer string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	producer = strings.ToLower(strings.TrimSpace(producer))
	if producer == "" {
		producer = "anonymous"
	}
	return l.bucket.Allow(ctx, keyEventIngest+producer, l.eventRate, l.eventBurst)
}

// Locker is nil when the limiter is disabled.
func (l *Limiter) Locker() *Locker {
	if !l.Enabled() {
		return nil
	}
	return l.locker
}
