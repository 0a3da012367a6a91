package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryCache_HitAndMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[[]string](Options{TTL: time.Hour, Capacity: 10})

	_, ok, err := c.Get(ctx, "form-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "form-1", []string{"b", "a", "c"}))

	got, ok, err := c.Get(ctx, "form-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"b", "a", "c"}, got)
}

func TestMemoryCache_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c := NewMemoryCache[int](Options{TTL: time.Hour}).WithClock(clock.Now)

	require.NoError(t, c.Set(ctx, "k", 7))

	clock.Advance(59 * time.Minute)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictsEarliestInserted(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[int](Options{TTL: time.Hour, Capacity: 3})

	for i := range 3 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), i))
	}

	// Reading k0 does not protect it from eviction.
	_, ok, _ := c.Get(ctx, "k0")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "k3", 3))
	assert.Equal(t, 3, c.Len())

	_, ok, _ = c.Get(ctx, "k0")
	assert.False(t, ok)
	for _, k := range []string{"k1", "k2", "k3"} {
		_, ok, _ := c.Get(ctx, k)
		assert.True(t, ok, k)
	}
}

func TestMemoryCache_OverwriteRefreshesPosition(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[int](Options{TTL: time.Hour, Capacity: 2})

	require.NoError(t, c.Set(ctx, "a", 1))
	require.NoError(t, c.Set(ctx, "b", 2))
	require.NoError(t, c.Set(ctx, "a", 10))
	require.NoError(t, c.Set(ctx, "c", 3))

	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok)

	v, ok, _ := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[string](Options{TTL: time.Minute})

	require.NoError(t, c.Set(ctx, "x", "y"))
	require.NoError(t, c.Delete(ctx, "x"))
	require.NoError(t, c.Delete(ctx, "missing"))

	_, ok, _ := c.Get(ctx, "x")
	assert.False(t, ok)
}
