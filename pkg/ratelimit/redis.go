package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter backed by INCR and PEXPIRE, so every
// process sharing the Redis instance sees the same counts.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
	now    func() time.Time
}

// NewRedis creates a Redis limiter. Keys are stored under prefix.
func NewRedis(client redis.UniversalClient, cfg Config, prefix string) *Redis {
	return &Redis{client: client, cfg: cfg, prefix: prefix, now: time.Now}
}

// Check implements Limiter.
func (l *Redis) Check(ctx context.Context, key string) (Decision, error) {
	k := l.prefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		pttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis check: %w", err)
	}

	count := incr.Val()
	ttl := pttl.Val()
	// A negative TTL means the key was just created (or lost its expiry).
	if ttl < 0 {
		if err := l.client.PExpire(ctx, k, l.cfg.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: redis expire: %w", err)
		}
		ttl = l.cfg.Window
	}

	now := l.now()
	attempts := int64(l.cfg.Attempts)
	d := Decision{
		Allowed:   count <= attempts,
		Limit:     l.cfg.Attempts,
		Remaining: int(max(attempts-count, 0)),
		ResetAt:   now.Add(ttl),
	}
	if !d.Allowed {
		d.RetryAfter = retryAfter(now, d.ResetAt)
	}
	return d, nil
}

// Reset implements Limiter.
func (l *Redis) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis reset: %w", err)
	}
	return nil
}
