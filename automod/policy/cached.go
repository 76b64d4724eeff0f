package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluesky-social/tgmod/automod/cachestore"
	"github.com/redis/go-redis/v9"
)

const (
	policyCacheName = "group-policy"
	termsCacheName  = "filter-terms"
	termsCacheKey   = "all"
)

// Cache tiers used by CachedStore: group policies keyed by group ID, and the global term list under a single key.
type Caches struct {
	Policies cachestore.Cache[GroupPolicy]
	Terms    cachestore.Cache[[]FilterTerm]
}

func NewMemCaches(capacity int, ttl time.Duration) Caches {
	return Caches{
		Policies: cachestore.NewMemCache[GroupPolicy](capacity, ttl),
		Terms:    cachestore.NewMemCache[[]FilterTerm](1, ttl),
	}
}

// Both caches share one redis backend, with a short process-local tier in front.
func NewRedisCaches(client *redis.Client, ttl, localTTL time.Duration) Caches {
	backend := cachestore.NewRedisBackend(client, localTTL)
	return Caches{
		Policies: cachestore.NewRedisCache[GroupPolicy](backend, policyCacheName, ttl),
		Terms:    cachestore.NewRedisCache[[]FilterTerm](backend, termsCacheName, ttl),
	}
}

// Wraps a Store with a read-through cache for group policies and the term list.
//
// Cache errors are logged and fall through to the underlying store. Writes purge the affected entries.
type CachedStore struct {
	Store  Store
	Caches Caches
	Logger *slog.Logger
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(store Store, caches Caches, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		Store:  store,
		Caches: caches,
		Logger: logger.With("system", "policy-cache"),
	}
}

func (s *CachedStore) ListTerms(ctx context.Context) ([]FilterTerm, error) {
	terms, err := s.Caches.Terms.Get(ctx, termsCacheKey)
	if err != nil {
		s.Logger.Warn("cache read failed", "name", termsCacheName, "err", err)
	} else if terms != nil {
		return *terms, nil
	}

	fresh, err := s.Store.ListTerms(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Caches.Terms.Set(ctx, termsCacheKey, fresh); err != nil {
		s.Logger.Warn("cache write failed", "name", termsCacheName, "err", err)
	}
	return fresh, nil
}

func (s *CachedStore) purgeTerms(ctx context.Context) {
	if err := s.Caches.Terms.Purge(ctx, termsCacheKey); err != nil {
		s.Logger.Warn("cache purge failed", "name", termsCacheName, "err", err)
	}
}

func (s *CachedStore) GetTerm(ctx context.Context, id uint64) (*FilterTerm, error) {
	return s.Store.GetTerm(ctx, id)
}

func (s *CachedStore) CreateTerm(ctx context.Context, term FilterTerm) (*FilterTerm, error) {
	defer s.purgeTerms(ctx)
	return s.Store.CreateTerm(ctx, term)
}

func (s *CachedStore) UpdateTerm(ctx context.Context, id uint64, update TermUpdate) (*FilterTerm, error) {
	defer s.purgeTerms(ctx)
	return s.Store.UpdateTerm(ctx, id, update)
}

func (s *CachedStore) DeleteTerm(ctx context.Context, id uint64) error {
	defer s.purgeTerms(ctx)
	return s.Store.DeleteTerm(ctx, id)
}

func (s *CachedStore) GetPolicy(ctx context.Context, groupID string) (*GroupPolicy, error) {
	p, err := s.Caches.Policies.Get(ctx, groupID)
	if err != nil {
		s.Logger.Warn("cache read failed", "name", policyCacheName, "group", groupID, "err", err)
	} else if p != nil {
		return p, nil
	}

	p, err = s.Store.GetPolicy(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.Caches.Policies.Set(ctx, groupID, *p); err != nil {
		s.Logger.Warn("cache write failed", "name", policyCacheName, "group", groupID, "err", err)
	}
	return p, nil
}

func (s *CachedStore) UpdatePolicy(ctx context.Context, groupID string, update PolicyUpdate) (*GroupPolicy, error) {
	defer func() {
		if err := s.Caches.Policies.Purge(ctx, groupID); err != nil {
			s.Logger.Warn("cache purge failed", "name", policyCacheName, "group", groupID, "err", err)
		}
	}()
	return s.Store.UpdatePolicy(ctx, groupID, update)
}
