package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// Reaper defaults.
const (
	DefaultReapInterval    = time.Hour
	DefaultReapProbability = 0.01
)

// ReapResult counts what one cleanup pass removed.
type ReapResult struct {
	Sessions    int64
	Invitations int64
}

// Reaper deletes expired sessions and stale invitations inline, gated by a
// minimum interval and a probability draw instead of a background timer.
// Correctness never depends on it: expired rows are rejected at read time.
type Reaper struct {
	Store       store.Store
	MinInterval time.Duration
	// Probability is the chance a gated call runs a pass. Zero means
	// DefaultReapProbability; a negative value turns inline cleanup off.
	Probability float64

	Now  func() time.Time
	Rand func() float64

	// OnReap is called after every pass that ran.
	OnReap func(ReapResult)

	mu      sync.Mutex
	lastRun time.Time
}

func (r *Reaper) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// MaybeRun runs a cleanup pass when both throttles allow it and reports
// whether it did. Concurrent callers never wait on each other.
func (r *Reaper) MaybeRun(ctx context.Context) bool {
	if !r.mu.TryLock() {
		return false
	}
	defer r.mu.Unlock()

	interval := r.MinInterval
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	now := r.now()
	if !r.lastRun.IsZero() && now.Sub(r.lastRun) < interval {
		return false
	}

	p := r.Probability
	if p < 0 {
		return false
	}
	if p == 0 {
		p = DefaultReapProbability
	}
	draw := rand.Float64
	if r.Rand != nil {
		draw = r.Rand
	}
	if draw() >= p {
		return false
	}

	r.lastRun = now
	res := r.run(ctx, now)
	if r.OnReap != nil {
		r.OnReap(res)
	}
	return true
}

// Run performs a cleanup pass unconditionally.
func (r *Reaper) Run(ctx context.Context) ReapResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.lastRun = now
	res := r.run(ctx, now)
	if r.OnReap != nil {
		r.OnReap(res)
	}
	return res
}

// run never fails; each deletion is independent and errors are only logged.
func (r *Reaper) run(ctx context.Context, now time.Time) ReapResult {
	log := slogx.FromContext(ctx)
	var res ReapResult

	n, err := r.Store.Sessions().DeleteExpired(ctx, now)
	if err != nil {
		log.Error("failed to delete expired sessions", slog.Any("error", err))
	} else {
		res.Sessions = n
	}

	n, err = r.Store.Invitations().DeleteStale(ctx, now)
	if err != nil {
		log.Error("failed to delete stale invitations", slog.Any("error", err))
	} else {
		res.Invitations = n
	}

	log.Info("cleanup completed",
		slog.Int64("sessions", res.Sessions),
		slog.Int64("invitations", res.Invitations),
	)
	return res
}
