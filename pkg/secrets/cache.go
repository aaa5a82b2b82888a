package secrets

import (
	"context"
	"time"

	"github.com/bluele/gcache"
)

const defaultCacheSize = 16

// CachedStore keeps successfully fetched secrets for a fixed time. Failures are not cached.
type CachedStore struct {
	next  Store
	cache gcache.Cache
}

// NewCachedStore wraps next with an LRU cache of size entries expiring after ttl.
func NewCachedStore(next Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &CachedStore{
		next:  next,
		cache: gcache.New(size).LRU().Expiration(ttl).Build(),
	}
}

// GetSecret returns the cached value for id or fetches it from the wrapped store.
func (c *CachedStore) GetSecret(ctx context.Context, id string) (string, error) {
	if value, err := c.cache.Get(id); err == nil {
		return value.(string), nil
	}

	secret, err := c.next.GetSecret(ctx, id)
	if err != nil {
		return "", err
	}
	_ = c.cache.Set(id, secret)
	return secret, nil
}
