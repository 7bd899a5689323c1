package report

import (
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a served analytics snapshot may be.
const DefaultCacheTTL = 5 * time.Minute

// Cache is a TTL cache for analytics snapshots, keyed by (kind, options).
// It is an explicit object owned by the service, not process-global, and
// is safe for concurrent use. Two callers missing the same key at once
// both recompute; that is a wasted computation, not a correctness
// problem, since snapshots are deterministic.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	snap     *Snapshot
	storedAt time.Time
}

// NewCache creates a cache with the given TTL (DefaultCacheTTL if zero).
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

// Get returns a fresh snapshot for key, or nil.
func (c *Cache) Get(key string) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return nil
	}
	return e.snap
}

// Put stores a snapshot under key.
func (c *Cache) Put(key string, snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{snap: snap, storedAt: c.now()}
}

// Clear drops every cached snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
