package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, ScenarioKey("a"), map[string]int{"x": 1}, 0))

	var got map[string]int
	hit, err := c.GetJSON(ctx, ScenarioKey("a"), &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, got["x"])

	require.NoError(t, c.Del(ctx, ScenarioKey("a")))
	hit, _ = c.GetJSON(ctx, ScenarioKey("a"), &got)
	assert.False(t, hit)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "k", 5, time.Minute))
	now = now.Add(59 * time.Second)
	var v int
	hit, _ := c.GetJSON(ctx, "k", &v)
	assert.True(t, hit)

	now = now.Add(time.Second)
	hit, _ = c.GetJSON(ctx, "k", &v)
	assert.False(t, hit)
}

func TestMemoryCacheTypeMismatchIsMiss(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.SetJSON(ctx, "k", "text", 0))
	var v int
	hit, err := c.GetJSON(ctx, "k", &v)
	assert.NoError(t, err)
	assert.False(t, hit)
}
