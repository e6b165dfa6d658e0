package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

func newClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

type RedisCache struct {
	c *redis.Client
}

func New(opts Options) *RedisCache {
	return &RedisCache{c: newClient(opts)}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.c.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.c.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return errors.Wrap(r.c.Ping(ctx).Err(), "redis ping")
}

func (r *RedisCache) Close() error {
	return r.c.Close()
}
