package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces the same per-client, per-operation budget with
// Redis counters, so multiple service instances share one view of a
// client's attempts. Fixed-window semantics: the TTL is set on the first
// hit and the counter dies with it.
type RedisLimiter struct {
	redis     redis.UniversalClient
	cfg       Config
	protected map[string]struct{}
}

// NewRedisLimiter builds the Redis-backed limiter.
func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	protected := make(map[string]struct{}, len(cfg.Protected))
	for _, op := range cfg.Protected {
		protected[op] = struct{}{}
	}
	return &RedisLimiter{redis: client, cfg: cfg, protected: protected}
}

func (l *RedisLimiter) key(clientID, operation string) string {
	return "rl:" + clientID + ":" + operation
}

// Allow increments the window counter and rejects once it passes the budget.
// Backend errors surface to the caller rather than silently passing traffic.
func (l *RedisLimiter) Allow(ctx context.Context, clientID, operation string) error {
	if _, ok := l.protected[operation]; !ok {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.key(clientID, operation), l.cfg.Window)
	if err != nil {
		return err
	}
	if count > int64(l.cfg.MaxAttempts) {
		return ErrLimited
	}
	return nil
}

func (l *RedisLimiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limiter backend: %w", err)
	}

	// TTL only on the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("rate limiter backend: %w", err)
		}
	}

	return count, nil
}
