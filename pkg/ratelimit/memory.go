package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSweepInterval is how often idle buckets are discarded.
const DefaultSweepInterval = 5 * time.Minute

// Memory is an in-process token bucket limiter. Each key gets a bucket of
// Attempts tokens refilled at Attempts per Window, so N attempts in quick
// succession exhaust it and the (N+1)th is refused until a token refills.
type Memory struct {
	cfg   Config
	limit rate.Limit
	now   func() time.Time

	limiters sync.Map // map[string]*rate.Limiter

	mu            sync.Mutex
	lastSweep     time.Time
	sweepInterval time.Duration
}

// MemoryOption customises a Memory limiter.
type MemoryOption func(*Memory)

// WithClock overrides the time source. Tests use it to step time manually.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) { m.sweepInterval = d }
}

// NewMemory creates a Memory limiter.
func NewMemory(cfg Config, opts ...MemoryOption) *Memory {
	m := &Memory{
		cfg:           cfg,
		limit:         rate.Limit(float64(cfg.Attempts) / cfg.Window.Seconds()),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSweep = m.now()
	return m
}

// Check implements Limiter.
func (m *Memory) Check(_ context.Context, key string) (Decision, error) {
	now := m.now()
	m.maybeSweep(now)
	lim := m.getLimiter(key)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		resetAt := now.Add(m.cfg.Window)
		return Decision{Limit: m.cfg.Attempts, ResetAt: resetAt, RetryAfter: retryAfter(now, resetAt)}, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		// Refused attempts must not eat into the allowance.
		res.CancelAt(now)
		resetAt := now.Add(delay)
		return Decision{Limit: m.cfg.Attempts, ResetAt: resetAt, RetryAfter: retryAfter(now, resetAt)}, nil
	}

	tokens := lim.TokensAt(now)
	return Decision{
		Allowed:   true,
		Limit:     m.cfg.Attempts,
		Remaining: max(int(math.Floor(tokens)), 0),
		ResetAt:   now.Add(m.refillTime(tokens)),
	}, nil
}

// Reset implements Limiter.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.limiters.Delete(key)
	return nil
}

// Len returns the number of keys currently tracked.
func (m *Memory) Len() int {
	n := 0
	m.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (m *Memory) getLimiter(key string) *rate.Limiter {
	if limiter, ok := m.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	actual, _ := m.limiters.LoadOrStore(key, rate.NewLimiter(m.limit, m.cfg.Attempts))
	return actual.(*rate.Limiter)
}

// refillTime is how long until a bucket currently holding tokens is full.
func (m *Memory) refillTime(tokens float64) time.Duration {
	missing := float64(m.cfg.Attempts) - tokens
	if missing <= 0 || m.limit <= 0 {
		return 0
	}
	return time.Duration(missing / float64(m.limit) * float64(time.Second))
}

// maybeSweep drops buckets that have refilled completely. A full bucket is
// indistinguishable from a fresh one, so removing it loses nothing.
func (m *Memory) maybeSweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) < m.sweepInterval {
		return
	}
	m.lastSweep = now

	m.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).TokensAt(now) >= float64(m.cfg.Attempts) {
			m.limiters.Delete(key)
		}
		return true
	})
}
