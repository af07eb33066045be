package profile

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Cache sizing defaults for NewCachedStore.
const (
	DefaultCacheSize = 4096
	DefaultCacheTTL  = 30 * time.Second
)

// CachedStore is a read-through TTL cache over a Store.
//
// Profile snapshots (including "absent", cached as nil) are immutable
// once written and replaced wholesale on update — never mutated in place.
// Concurrent lookups for the same user are collapsed into a single
// backend call. The cache trades a bounded staleness window (the TTL)
// for fewer backend round trips on the search hot path.
type CachedStore struct {
	store Store
	cache *expirable.LRU[string, *UserProfile]
	group singleflight.Group
}

// NewCachedStore wraps store with an LRU cache of at most size entries,
// each expiring after ttl. Non-positive size or ttl select the defaults.
func NewCachedStore(store Store, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{
		store: store,
		cache: expirable.NewLRU[string, *UserProfile](size, nil, ttl),
	}
}

// GetProfileByUserID resolves a user to their profile, serving from the
// cache when a fresh entry exists. Callers must treat the returned
// profile as read-only.
func (c *CachedStore) GetProfileByUserID(ctx context.Context, userID string) (*UserProfile, error) {
	if cached, ok := c.cache.Get(userID); ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		p, err := c.store.GetProfileByUserID(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.cache.Add(userID, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*UserProfile), nil
}

// SaveProfile writes through to the backend and invalidates the user's
// cache entry so the next read observes the new snapshot.
func (c *CachedStore) SaveProfile(ctx context.Context, userID string, profileContent *string, topics map[string]interface{}) (int64, error) {
	id, err := c.store.SaveProfile(ctx, userID, profileContent, topics)
	if err != nil {
		return 0, err
	}
	c.cache.Remove(userID)
	return id, nil
}

// GetProfiles delegates to the backend; list results are not cached.
func (c *CachedStore) GetProfiles(ctx context.Context, opts *GetProfilesOptions) ([]*UserProfile, error) {
	return c.store.GetProfiles(ctx, opts)
}

// DeleteProfile delegates to the backend. Deletion is keyed by profile
// ID while the cache is keyed by user ID, so the whole cache is purged.
func (c *CachedStore) DeleteProfile(ctx context.Context, profileID int64) error {
	if err := c.store.DeleteProfile(ctx, profileID); err != nil {
		return err
	}
	c.cache.Purge()
	return nil
}

// Close closes the underlying store.
func (c *CachedStore) Close() error {
	c.cache.Purge()
	return c.store.Close()
}
