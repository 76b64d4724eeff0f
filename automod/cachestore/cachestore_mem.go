package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Process-local cache holding values directly, without serialization.
//
// Reference types (slices, maps, pointer fields) are shared between all readers of an entry, so callers must treat returned values as read-only.
type MemCache[T any] struct {
	Data *expirable.LRU[string, T]
}

var _ Cache[int] = (*MemCache[int])(nil)

func NewMemCache[T any](capacity int, ttl time.Duration) *MemCache[T] {
	return &MemCache[T]{
		Data: expirable.NewLRU[string, T](capacity, nil, ttl),
	}
}

func (c *MemCache[T]) Get(ctx context.Context, key string) (*T, error) {
	v, ok := c.Data.Get(key)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *MemCache[T]) Set(ctx context.Context, key string, val T) error {
	c.Data.Add(key, val)
	return nil
}

func (c *MemCache[T]) Purge(ctx context.Context, key string) error {
	c.Data.Remove(key)
	return nil
}
