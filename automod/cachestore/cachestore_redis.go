package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Shared redis backend for any number of typed caches. With localTTL > 0, a small process-local TinyLFU sits in front of redis.
//
// The local tier is not invalidated by purges from other processes, so localTTL bounds how stale a value can get across replicas.
func NewRedisBackend(client *redis.Client, localTTL time.Duration) *cache.Cache {
	opts := &cache.Options{
		Redis: client,
	}
	if localTTL > 0 {
		opts.LocalCache = cache.NewTinyLFU(10_000, localTTL)
	}
	return cache.New(opts)
}

// Values are msgpack-encoded by the backend, under "cache/<name>/<key>".
type RedisCache[T any] struct {
	Data *cache.Cache
	Name string
	TTL  time.Duration
}

var _ Cache[int] = (*RedisCache[int])(nil)

func NewRedisCache[T any](backend *cache.Cache, name string, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{
		Data: backend,
		Name: name,
		TTL:  ttl,
	}
}

func (c *RedisCache[T]) key(key string) string {
	return "cache/" + c.Name + "/" + key
}

func (c *RedisCache[T]) Get(ctx context.Context, key string) (*T, error) {
	var val T
	err := c.Data.Get(ctx, c.key(key), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &val, nil
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, val T) error {
	return c.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   c.key(key),
		Value: val,
		TTL:   c.TTL,
	})
}

func (c *RedisCache[T]) Purge(ctx context.Context, key string) error {
	err := c.Data.Delete(ctx, c.key(key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
