package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryLimiterWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false, false} {
		ok, err := l.Allow(ctx, "u1")
		assert.NoError(t, err)
		assert.Equal(t, want, ok, "hit %d", i+1)
	}

	ok, _ := l.Allow(ctx, "u2")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "u1")
	assert.True(t, ok, "new window")
}

func TestZeroMaxDisablesLimit(t *testing.T) {
	l := NewMemoryLimiter(0, time.Second)
	for range 100 {
		ok, _ := l.Allow(context.Background(), "u")
		assert.True(t, ok)
	}
}

func TestRedisLimiterWithoutClient(t *testing.T) {
	var l *RedisLimiter
	_, err := l.Allow(context.Background(), "u")
	assert.Error(t, err)
}
