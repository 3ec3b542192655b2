package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/llm-observatory-storage/pkg/repo"
)

// responseCache is the list-handler's second-level cache: serialized
// envelopes keyed by a hash of (user, project, canonicalized query),
// distinct from pkg/middleware.Caching's per-response ETag/304 layer.
// A nil client degrades every operation to a clean cache miss.
type responseCache struct {
	client *redis.Client
}

func newResponseCache(client *redis.Client) responseCache {
	return responseCache{client: client}
}

// key hashes the ordered list of cache-relevant values into a stable
// lookup key, namespaced so response-cache entries never collide with
// other cache consumers sharing the same Redis instance.
func (c responseCache) key(values ...any) string {
	return "httpapi:resp:" + repo.CacheKey(values...)
}

// get returns the cached envelope bytes for key, or ok=false on miss or
// when the cache is unavailable.
func (c responseCache) get(ctx context.Context, key string) ([]byte, bool) {
	if c.client == nil {
		return nil, false
	}
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// set stores data under key with the given TTL, silently degrading on
// cache-store failure — a failed write never fails the request.
func (c responseCache) set(ctx context.Context, key string, data any, ttl time.Duration) {
	if c.client == nil {
		return
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, b, ttl).Err()
}

// ttlFor implements the recency-dependent TTL rule: responses whose window
// reaches into the last hour are cached briefly (still-moving data), older
// windows are cached longer (effectively immutable history).
func ttlFor(windowEnd time.Time) time.Duration {
	if time.Since(windowEnd) < time.Hour {
		return 60 * time.Second
	}
	return 300 * time.Second
}
