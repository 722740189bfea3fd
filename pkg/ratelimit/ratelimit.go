// Package ratelimit throttles repeated attempts per logical key.
//
// Two backends are provided: Memory, a per-process token bucket built on
// golang.org/x/time/rate, and Redis, a fixed-window counter shared by every
// replica pointing at the same Redis.
package ratelimit

import (
	"context"
	"time"
)

// Config defines the limiting parameters.
type Config struct {
	// Attempts is the number of attempts allowed per Window.
	Attempts int
	// Window is the period over which Attempts are counted.
	Window time.Duration
}

// LoginDefault allows 5 login attempts per 15 minutes per key.
var LoginDefault = Config{Attempts: 5, Window: 15 * time.Minute}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed bool
	// Limit is the configured number of attempts per window.
	Limit int
	// Remaining is how many further attempts would be allowed right now.
	Remaining int
	// ResetAt is when the next attempt will be allowed when Allowed is false,
	// or when the key's allowance is fully restored when Allowed is true.
	ResetAt time.Time
	// RetryAfter is the wait until ResetAt in whole seconds, at least one.
	// Zero when Allowed.
	RetryAfter time.Duration
}

func retryAfter(now, resetAt time.Time) time.Duration {
	wait := resetAt.Sub(now)
	secs := (wait + time.Second - 1) / time.Second
	return max(secs, 1) * time.Second
}

// Limiter tracks attempts per key.
type Limiter interface {
	// Check records one attempt for key and reports whether it is allowed.
	// Attempts that are not allowed do not consume allowance.
	Check(ctx context.Context, key string) (Decision, error)
	// Reset forgets all attempts recorded for key.
	Reset(ctx context.Context, key string) error
}
