package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(OTPConfig()).WithClock(func() time.Time { return now })
	defer l.Close()

	for i := range 5 {
		info, err := l.Allow(ctx, "10.0.0.1:9876543210")
		require.NoError(t, err)
		assert.True(t, info.Allowed, "attempt %d", i+1)
		assert.Equal(t, 4-i, info.Remaining)
	}

	info, err := l.Allow(ctx, "10.0.0.1:9876543210")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
	assert.Equal(t, 15*time.Minute, info.RetryAfter)

	// Other keys are independent.
	info, _ = l.Allow(ctx, "10.0.0.2:9876543210")
	assert.True(t, info.Allowed)

	now = now.Add(15 * time.Minute)
	info, _ = l.Allow(ctx, "10.0.0.1:9876543210")
	assert.True(t, info.Allowed)
	assert.Equal(t, 4, info.Remaining)
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l := NewMemoryLimiter(Config{Window: time.Minute, MaxAttempts: 10})
	defer l.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, _ := l.Allow(context.Background(), "k")
			if info.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestMemoryLimiter_Reset(t *testing.T) {
	l := NewMemoryLimiter(Config{Window: time.Minute, MaxAttempts: 1})
	defer l.Close()

	info, _ := l.Allow(context.Background(), "k")
	require.True(t, info.Allowed)
	info, _ = l.Allow(context.Background(), "k")
	require.False(t, info.Allowed)

	l.Reset("k")
	info, _ = l.Allow(context.Background(), "k")
	assert.True(t, info.Allowed)
}
