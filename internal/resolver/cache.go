package resolver

import (
	"sync"
	"time"

	"github.com/streampanel/resolvd/internal/model"
)

// resultTTL bounds how long a cached resolution stays valid. Resolved URLs
// are typically tokenized and short-lived; 20 minutes matches the shortest
// token lifetime the resolver contract assumes.
const resultTTL = 20 * time.Minute

type cacheEntry struct {
	result   model.ResolveResult
	storedAt time.Time
}

// Cache is a TTL-bounded memoization of resolution results keyed by request
// fingerprint. Entries are never refreshed in place: an expired entry is
// dropped on lookup, and a new resolution overwrites it wholesale. Safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates an empty result cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached result for fingerprint if present and younger than
// the TTL. A stale entry behaves as absent and is removed.
func (c *Cache) Get(fingerprint string) (model.ResolveResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return model.ResolveResult{}, false
	}
	if c.now().Sub(e.storedAt) >= resultTTL {
		delete(c.entries, fingerprint)
		return model.ResolveResult{}, false
	}
	return e.result, true
}

// Put inserts or overwrites the entry for fingerprint with the current
// timestamp.
func (c *Cache) Put(fingerprint string, result model.ResolveResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = cacheEntry{result: result, storedAt: c.now()}
}

// Clear removes all entries. Called after every program re-install: a new
// program version may resolve the same input differently.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Size returns the number of stored entries, stale ones included.
// Observability only.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
