package traffic

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUStore is a bounded in-memory Store. The size bound protects long-running
// processes that dispatch many distinct fingerprints; eviction order beyond
// TTL is least-recently-used.
type LRUStore struct {
	inner *lru.Cache[string, *CacheEntry]
}

// NewLRUStore creates a store holding at most maxEntries entries.
func NewLRUStore(maxEntries int) (*LRUStore, error) {
	inner, err := lru.New[string, *CacheEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &LRUStore{inner: inner}, nil
}

// Get retrieves a fresh entry, lazily evicting it when expired.
func (s *LRUStore) Get(key string) (*CacheEntry, bool) {
	entry, ok := s.inner.Get(key)
	if !ok {
		return nil, false
	}
	if entry.Expired(time.Now()) {
		s.inner.Remove(key)
		return nil, false
	}
	return entry, true
}

// Set stores or overwrites an entry, possibly evicting the least recently
// used one.
func (s *LRUStore) Set(key string, entry *CacheEntry) {
	s.inner.Add(key, entry)
}

// Delete removes an entry.
func (s *LRUStore) Delete(key string) {
	s.inner.Remove(key)
}

// Clear removes all entries and returns how many were removed.
func (s *LRUStore) Clear() int {
	removed := s.inner.Len()
	s.inner.Purge()
	return removed
}

// Stats counts fresh entries and reports the oldest entry's age. Peek avoids
// disturbing recency order.
func (s *LRUStore) Stats() StoreStats {
	now := time.Now()
	stats := StoreStats{}
	var oldest time.Time

	for _, key := range s.inner.Keys() {
		entry, ok := s.inner.Peek(key)
		if !ok || entry.Expired(now) {
			continue
		}
		stats.Entries++
		if oldest.IsZero() || entry.CreatedAt.Before(oldest) {
			oldest = entry.CreatedAt
		}
	}

	if !oldest.IsZero() {
		stats.OldestAge = now.Sub(oldest)
	}
	return stats
}
