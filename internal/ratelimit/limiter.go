// Package ratelimit implements fixed-window request limits keyed by caller.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	// Allow records one hit for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

type RedisLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, max: max, window: window, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return false, fmt.Errorf("redis client not available")
	}
	if l.max <= 0 {
		return true, nil
	}

	k := fmt.Sprintf("rate:%s:%s", l.prefix, key)
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	// first hit opens the window
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(l.max), nil
}

type window struct {
	count int
	reset time.Time
}

// MemoryLimiter is the single-process equivalent of RedisLimiter.
type MemoryLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string]*window
	now    func() time.Time
}

func NewMemoryLimiter(max int, w time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: max, window: w, hits: map[string]*window{}, now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.max <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.hits[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(l.window)}
		l.hits[key] = w
	}
	w.count++
	return w.count <= l.max, nil
}
