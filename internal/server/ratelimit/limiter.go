// Package ratelimit implements a redis-backed fixed-window request limiter
// shared by every server instance.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes the state of a key's window after a hit.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Limiter allows Limit hits per key per window.
type Limiter struct {
	rdb    redis.Cmdable
	prefix string
	limit  int
	window time.Duration
}

func New(rdb redis.Cmdable, prefix string, limit int, window time.Duration) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Limiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

func (l *Limiter) key(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

// Allow records a hit for key. The window starts with the first hit and is
// not extended by later ones.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := l.key(key)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{Allowed: true, Limit: l.limit, Remaining: l.limit}, fmt.Errorf("redis error: %w", err)
	}

	resetIn := ttl.Val()
	if resetIn < 0 {
		// fresh key, or one that lost its expiry
		if err := l.rdb.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return Result{Allowed: true, Limit: l.limit, Remaining: l.limit}, fmt.Errorf("redis error: %w", err)
		}
		resetIn = l.window
	}

	count := int(incr.Val())
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}

// Reset clears the window of key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.key(key)).Err()
}
