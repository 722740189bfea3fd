package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/folio/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemory_BlocksAfterThreshold(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := ratelimit.NewMemory(ratelimit.Config{Attempts: 3, Window: 3 * time.Minute}, ratelimit.WithClock(clock.Now))

	for i := range 3 {
		d, err := l.Check(ctx, "login:203.0.113.1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "attempt %d should be allowed", i+1)
		require.Equal(t, 2-i, d.Remaining)
		require.Equal(t, 3, d.Limit)
	}

	d, err := l.Check(ctx, "login:203.0.113.1")
	require.NoError(t, err)
	require.False(t, d.Allowed, "4th attempt should be blocked")
	require.Equal(t, 0, d.Remaining)
	require.WithinDuration(t, clock.Now().Add(time.Minute), d.ResetAt, time.Millisecond)
	require.InDelta(t, float64(time.Minute), float64(d.RetryAfter), float64(time.Second))

	// Still blocked just before resetAt.
	clock.Advance(59 * time.Second)
	d, err = l.Check(ctx, "login:203.0.113.1")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Allowed again once resetAt has passed.
	clock.Advance(2 * time.Second)
	d, err = l.Check(ctx, "login:203.0.113.1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := ratelimit.NewMemory(ratelimit.Config{Attempts: 1, Window: time.Minute}, ratelimit.WithClock(clock.Now))

	d, err := l.Check(ctx, "login:a")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = l.Check(ctx, "login:a")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = l.Check(ctx, "login:b")
	require.NoError(t, err)
	require.True(t, d.Allowed, "other keys should have their own allowance")
}

func TestMemory_RefusedAttemptsDoNotExtendLockout(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := ratelimit.NewMemory(ratelimit.Config{Attempts: 2, Window: 2 * time.Minute}, ratelimit.WithClock(clock.Now))

	for range 2 {
		_, err := l.Check(ctx, "k")
		require.NoError(t, err)
	}
	for range 10 {
		d, err := l.Check(ctx, "k")
		require.NoError(t, err)
		require.False(t, d.Allowed)
	}

	clock.Advance(time.Minute + time.Second)
	d, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := ratelimit.NewMemory(ratelimit.Config{Attempts: 1, Window: time.Hour}, ratelimit.WithClock(clock.Now))

	_, err := l.Check(ctx, "k")
	require.NoError(t, err)
	d, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	require.NoError(t, l.Reset(ctx, "k"))

	d, err = l.Check(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestMemory_SweepsIdleKeys(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := ratelimit.NewMemory(
		ratelimit.Config{Attempts: 2, Window: time.Minute},
		ratelimit.WithClock(clock.Now),
		ratelimit.WithSweepInterval(5*time.Minute),
	)

	for _, key := range []string{"a", "b", "c"} {
		_, err := l.Check(ctx, key)
		require.NoError(t, err)
	}
	require.Equal(t, 3, l.Len())

	clock.Advance(10 * time.Minute)
	_, err := l.Check(ctx, "d")
	require.NoError(t, err)

	// a, b and c refilled long ago; only d remains.
	require.Equal(t, 1, l.Len())
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.NewMemory(ratelimit.Config{Attempts: 10, Window: time.Hour})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Check(ctx, "shared")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, allowed)
}

func TestMemory_RetryAfterRoundsUp(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := ratelimit.NewMemory(ratelimit.Config{Attempts: 2, Window: 3 * time.Second}, ratelimit.WithClock(clock.Now))

	for range 2 {
		_, err := l.Check(ctx, "k")
		require.NoError(t, err)
	}

	// One token every 1.5s: the hint rounds up to 2s.
	d, err := l.Check(ctx, "k")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 2*time.Second, d.RetryAfter)
}
