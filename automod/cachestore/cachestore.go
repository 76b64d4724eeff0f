package cachestore

import (
	"context"
)

// Typed read-through cache. A miss returns nil and no error.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (*T, error)
	Set(ctx context.Context, key string, val T) error
	Purge(ctx context.Context, key string) error
}
