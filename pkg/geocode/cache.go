package geocode

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/postalcrawl/internal/model"
)

// Cache stores search outcomes by query key. A nil result with found=true is
// a cached "no match".
type Cache interface {
	Get(ctx context.Context, key string) (res *model.ResolvedAddress, found bool, err error)
	Set(ctx context.Context, key string, res *model.ResolvedAddress) error
}

// GeocodeStore is the persistence a StoreCache needs.
type GeocodeStore interface {
	GetCachedGeocode(ctx context.Context, key string, maxAge time.Duration) (*model.ResolvedAddress, bool, error)
	SetCachedGeocode(ctx context.Context, key string, res *model.ResolvedAddress) error
}

// StoreCache is a Cache over a database table.
type StoreCache struct {
	store GeocodeStore
	ttl   time.Duration
}

// NewStoreCache creates a cache whose entries expire after ttl (0 = never).
func NewStoreCache(s GeocodeStore, ttl time.Duration) *StoreCache {
	return &StoreCache{store: s, ttl: ttl}
}

// Get implements Cache.
func (c *StoreCache) Get(ctx context.Context, key string) (*model.ResolvedAddress, bool, error) {
	return c.store.GetCachedGeocode(ctx, key, c.ttl)
}

// Set implements Cache.
func (c *StoreCache) Set(ctx context.Context, key string, res *model.ResolvedAddress) error {
	return c.store.SetCachedGeocode(ctx, key, res)
}

type memEntry struct {
	res *model.ResolvedAddress
	at  time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an empty cache whose entries expire after ttl (0 = never).
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*model.ResolvedAddress, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || (c.ttl > 0 && c.now().Sub(e.at) > c.ttl) {
		return nil, false, nil
	}
	return e.res, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, res *model.ResolvedAddress) error {
	c.mu.Lock()
	c.entries[key] = memEntry{res: res, at: c.now()}
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
