package traffic

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultRedisPrefix namespaces response entries inside a shared Redis.
const defaultRedisPrefix = "traffic:response:"

// RedisStore is a Redis-backed Store, the successor of the old on-disk cache
// directory. Entries are JSON documents with a server-side TTL, so expiry
// works even across processes sharing the same Redis. Redis failures degrade
// gracefully: reads behave as misses, writes become no-ops, both logged.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger Logger
}

// NewRedisStore wraps an existing Redis client. An empty prefix uses the
// default namespace.
func NewRedisStore(client *redis.Client, prefix string, logger Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(fingerprint string) string {
	return s.prefix + fingerprint
}

// Get retrieves a fresh entry. Missing keys, expired keys and Redis errors
// all read as a miss.
func (s *RedisStore) Get(key string) (*CacheEntry, bool) {
	ctx := context.Background()

	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warn("redis cache read failed", "key", key, "error", err.Error())
		}
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		if s.logger != nil {
			s.logger.Warn("redis cache entry corrupt", "key", key, "error", err.Error())
		}
		s.client.Del(ctx, s.key(key))
		return nil, false
	}

	// Redis expires the key itself; this guards against clock skew between
	// the writer and the Redis server.
	if entry.Expired(time.Now()) {
		s.client.Del(ctx, s.key(key))
		return nil, false
	}

	return &entry, true
}

// Set stores or overwrites an entry with a server-side TTL derived from its
// expiry time. Entries already past expiry are dropped.
func (s *RedisStore) Set(key string, entry *CacheEntry) {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("redis cache marshal failed", "key", key, "error", err.Error())
		}
		return
	}

	if err := s.client.Set(context.Background(), s.key(key), data, ttl).Err(); err != nil {
		if s.logger != nil {
			s.logger.Warn("redis cache write failed", "key", key, "error", err.Error())
		}
	}
}

// Delete removes an entry.
func (s *RedisStore) Delete(key string) {
	if err := s.client.Del(context.Background(), s.key(key)).Err(); err != nil && s.logger != nil {
		s.logger.Warn("redis cache delete failed", "key", key, "error", err.Error())
	}
}

// Clear removes every entry in this store's namespace and returns how many
// were removed.
func (s *RedisStore) Clear() int {
	ctx := context.Background()
	removed := 0

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err == nil {
			removed++
		}
	}
	if err := iter.Err(); err != nil && s.logger != nil {
		s.logger.Warn("redis cache clear incomplete", "error", err.Error())
	}
	return removed
}

// Stats scans the namespace counting entries and finding the oldest CreatedAt.
// Administrative operation; cost is proportional to entry count.
func (s *RedisStore) Stats() StoreStats {
	ctx := context.Background()
	now := time.Now()
	stats := StoreStats{}
	var oldest time.Time

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var entry CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Expired(now) {
			continue
		}
		stats.Entries++
		if oldest.IsZero() || entry.CreatedAt.Before(oldest) {
			oldest = entry.CreatedAt
		}
	}
	if err := iter.Err(); err != nil && s.logger != nil {
		s.logger.Warn("redis cache stats incomplete", "error", err.Error())
	}

	if !oldest.IsZero() {
		stats.OldestAge = now.Sub(oldest)
	}
	return stats
}
