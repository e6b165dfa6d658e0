package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter: fixed window на INCR: окно стартует с первого обращения к ключу.
type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(opts Options) *RateLimiter {
	return &RateLimiter{c: newClient(opts)}
}

// Allow делает INCR по ключу и ставит TTL, только если у ключа ещё нет срока жизни.
// Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}
