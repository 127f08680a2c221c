package traffic

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// CacheEntry is one cached successful response payload.
type CacheEntry struct {
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// StoreStats describes a store's content for introspection.
type StoreStats struct {
	Entries   int
	OldestAge time.Duration
}

// Store is the persistence contract behind ResponseCache. Implementations
// must be safe for concurrent use and must never return an expired entry;
// expired entries are lazily evicted on access.
type Store interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry)
	Delete(key string)
	// Clear removes all entries and returns how many were removed.
	Clear() int
	Stats() StoreStats
}

// ResponseCache avoids redundant remote calls for identical logical requests
// within a validity window. Caching is an explicit opt-in: callers whose data
// cannot tolerate staleness leave it disabled and every lookup is a miss.
type ResponseCache struct {
	store      Store
	enabled    atomic.Bool
	defaultTTL time.Duration
	logger     Logger
	metrics    *MetricsCollector
}

// NewResponseCache wraps a store with TTL bookkeeping and the enable toggle.
func NewResponseCache(store Store, enabled bool, defaultTTL time.Duration, logger Logger, metrics *MetricsCollector) *ResponseCache {
	c := &ResponseCache{
		store:      store,
		defaultTTL: defaultTTL,
		logger:     logger,
		metrics:    metrics,
	}
	c.enabled.Store(enabled)
	return c
}

// Enabled reports whether lookups and writes are active.
func (c *ResponseCache) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled toggles the cache at runtime.
func (c *ResponseCache) SetEnabled(v bool) {
	c.enabled.Store(v)
}

// Get returns the cached payload for a fingerprint if present and fresh.
// Absence (including expiry) is not an error.
func (c *ResponseCache) Get(fingerprint string) ([]byte, bool) {
	if !c.enabled.Load() {
		return nil, false
	}

	entry, ok := c.store.Get(fingerprint)
	if !ok {
		if c.logger != nil {
			c.logger.Debug("cache miss", "fingerprint", fingerprint)
		}
		return nil, false
	}

	if c.logger != nil {
		c.logger.Debug("cache hit", "fingerprint", fingerprint)
	}
	return entry.Payload, true
}

// Put stores a successful response payload. A zero ttl uses the default.
// Failures are never cached; callers only reach Put with a success payload.
func (c *ResponseCache) Put(fingerprint string, payload []byte, ttl time.Duration) {
	if !c.enabled.Load() {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	c.store.Set(fingerprint, &CacheEntry{
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})

	if c.logger != nil {
		c.logger.Debug("response cached", "fingerprint", fingerprint, "ttl", ttl)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheSize("default", c.store.Stats().Entries)
	}
}

// Clear removes all entries and returns how many were removed. Administrative
// operation; works even while the cache is disabled.
func (c *ResponseCache) Clear() int {
	return c.store.Clear()
}

// Stats returns entry count and oldest entry age. Introspection only.
func (c *ResponseCache) Stats() StoreStats {
	return c.store.Stats()
}

// ShardedStore is the default in-memory Store: a fixed set of RWMutex-guarded
// map shards keyed by FNV-1a of the fingerprint.
type ShardedStore struct {
	shards    []*storeShard
	numShards int
}

type storeShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewShardedStore creates an empty in-memory store.
func NewShardedStore() *ShardedStore {
	const numShards = 16
	shards := make([]*storeShard, numShards)
	for i := range shards {
		shards[i] = &storeShard{store: make(map[string]*CacheEntry)}
	}
	return &ShardedStore{shards: shards, numShards: numShards}
}

func (s *ShardedStore) getShard(key string) *storeShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Get retrieves a fresh entry, lazily evicting it when expired.
func (s *ShardedStore) Get(key string) (*CacheEntry, bool) {
	shard := s.getShard(key)

	shard.mu.RLock()
	entry, exists := shard.store[key]
	shard.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if entry.Expired(time.Now()) {
		shard.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have replaced it.
		if cur, ok := shard.store[key]; ok && cur.Expired(time.Now()) {
			delete(shard.store, key)
		}
		shard.mu.Unlock()
		return nil, false
	}

	return entry, true
}

// Set stores or overwrites an entry.
func (s *ShardedStore) Set(key string, entry *CacheEntry) {
	shard := s.getShard(key)
	shard.mu.Lock()
	shard.store[key] = entry
	shard.mu.Unlock()
}

// Delete removes an entry.
func (s *ShardedStore) Delete(key string) {
	shard := s.getShard(key)
	shard.mu.Lock()
	delete(shard.store, key)
	shard.mu.Unlock()
}

// Clear removes all entries and returns how many were removed.
func (s *ShardedStore) Clear() int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		removed += len(shard.store)
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
	return removed
}

// Stats counts fresh entries and reports the oldest entry's age.
func (s *ShardedStore) Stats() StoreStats {
	now := time.Now()
	stats := StoreStats{}
	var oldest time.Time

	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, entry := range shard.store {
			if entry.Expired(now) {
				continue
			}
			stats.Entries++
			if oldest.IsZero() || entry.CreatedAt.Before(oldest) {
				oldest = entry.CreatedAt
			}
		}
		shard.mu.RUnlock()
	}

	if !oldest.IsZero() {
		stats.OldestAge = now.Sub(oldest)
	}
	return stats
}
