// Package middleware provides gorilla/mux middleware shared across the HTTP
// surface: rate limiting and response caching.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/llm-observatory-storage/internal/apperror"
	"github.com/iota-uz/llm-observatory-storage/internal/authctx"
)

// KeyFunc derives the rate-limit bucket key for a request.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc keys on the caller's address, preferring X-Real-IP over
// RemoteAddr so requests behind a trusted proxy still get a stable key.
func DefaultKeyFunc(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// EndpointKeyFunc returns a KeyFunc that prefixes DefaultKeyFunc's key with
// a fixed endpoint label, giving each endpoint its own bucket per caller.
func EndpointKeyFunc(endpoint string) KeyFunc {
	return func(r *http.Request) string {
		return endpoint + ":" + DefaultKeyFunc(r)
	}
}

// AuthKeyFunc keys on the authenticated principal and request path, the key
// shape required for the per-role analytics API rate limit. Requests
// without an AuthContext attached (middleware ordering bug, or a route
// deliberately left unauthenticated) fall back to an "anonymous" bucket
// shared by path.
func AuthKeyFunc(r *http.Request) string {
	ac, ok := authctx.AuthContextFromRequest(r)
	if !ok {
		return "anonymous:" + r.URL.Path
	}
	return ac.UserID + ":" + r.URL.Path
}

// Store evaluates a token bucket atomically for one key. capacity is the
// burst size; refillRate is in tokens/second; window bounds how long an
// idle bucket's state is retained.
type Store interface {
	Allow(ctx context.Context, key string, capacity, refillRate float64, window time.Duration) (allowed bool, remaining int, limit int, resetAt int64, err error)
}

// MemoryStore is an in-process Store, sufficient for single-instance
// deployments and tests. Production deployments behind more than one API
// instance must use RedisStore so the bucket state is shared.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

type memoryBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*memoryBucket)}
}

func (s *MemoryStore) Allow(_ context.Context, key string, capacity, refillRate float64, window time.Duration) (bool, int, int, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	b, ok := s.buckets[key]
	if !ok {
		// Seed one token below capacity: a freshly created bucket keeps a
		// one-token safety margin rather than handing out the full burst
		// immediately, so a cold key can't itself spend the entire burst
		// before the rate's steady-state behavior has kicked in.
		b = &memoryBucket{tokens: capacity - 1, lastRefill: now}
		s.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = minFloat(capacity, b.tokens+elapsed*refillRate)
	b.lastRefill = now

	resetAt := now.Add(window).Unix()
	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), int(capacity), resetAt, nil
	}
	return false, 0, int(capacity), resetAt, nil
}

// tokenBucketScript is the Lua analogue of MemoryStore.Allow: it inspects,
// refills, and (if enough tokens are available) debits the bucket in one
// atomic round-trip, so concurrent API instances sharing the store never
// race on a read-then-write.
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local window = tonumber(ARGV[5])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1])
local last_refill = tonumber(bucket[2])

if tokens == nil then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
tokens = math.min(capacity, tokens + elapsed * refill_rate)

if tokens >= requested then
    tokens = tokens - requested
    redis.call('HMSET', key, 'tokens', tokens, 'last_refill', now)
    redis.call('EXPIRE', key, window)
    return {1, tokens, capacity, now + window}
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('EXPIRE', key, window)
return {0, tokens, capacity, now + window}
`

// RedisStore is the distributed Store backing production deployments: every
// API instance evaluates the same Lua script against the same Redis
// keyspace, so the bucket state is shared and the check-and-debit is
// atomic.
type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisStore wraps client with the token-bucket Lua script.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, script: redis.NewScript(tokenBucketScript)}
}

func (s *RedisStore) Allow(ctx context.Context, key string, capacity, refillRate float64, window time.Duration) (bool, int, int, int64, error) {
	now := time.Now().Unix()
	windowSeconds := int64(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	res, err := s.script.Run(ctx, s.client, []string{key}, capacity, refillRate, 1, now, windowSeconds).Result()
	if err != nil {
		return false, 0, int(capacity), 0, apperror.Wrap(apperror.CodeInternal, "rate limit check failed", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 4 {
		return false, 0, int(capacity), 0, apperror.New(apperror.CodeInternal, "rate limit script returned an unexpected shape")
	}

	allowed := toInt64(vals[0]) == 1
	remaining := int(toInt64(vals[1]))
	limit := int(toInt64(vals[2]))
	resetAt := toInt64(vals[3])
	return allowed, remaining, limit, resetAt, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

// RateLimitConfig configures a RateLimit middleware instance.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained refill rate.
	RequestsPerSecond float64
	// BurstSize is the bucket capacity and the reported limit.
	BurstSize int
	// KeyFunc derives the bucket key; defaults to DefaultKeyFunc.
	KeyFunc KeyFunc
	// Store holds bucket state; defaults to a fresh MemoryStore.
	Store Store
	// OnLimitReached handles a denied request; defaults to a 429 JSON body
	// via apperror.WriteHTTP.
	OnLimitReached http.HandlerFunc
	// WindowSeconds bounds idle-bucket retention; defaults to 60.
	WindowSeconds int
}

func (c *RateLimitConfig) withDefaults() RateLimitConfig {
	cfg := *c
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultKeyFunc
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = func(w http.ResponseWriter, r *http.Request) {
			apperror.WriteHTTP(w, apperror.New(apperror.CodeRateLimitExceeded, "too many requests"), "")
		}
	}
	return cfg
}

// RateLimit builds a gorilla/mux.MiddlewareFunc enforcing cfg's token
// bucket, adding X-Ratelimit-Limit/Remaining/Reset to every response and
// Retry-After when the request is denied.
func RateLimit(cfg RateLimitConfig) mux.MiddlewareFunc {
	resolved := cfg.withDefaults()
	window := time.Duration(resolved.WindowSeconds) * time.Second

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := resolved.KeyFunc(r)
			allowed, remaining, limit, resetAt, err := resolved.Store.Allow(
				r.Context(), key, float64(resolved.BurstSize), resolved.RequestsPerSecond, window)
			if err != nil {
				apperror.WriteHTTP(w, err, "")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

			if !allowed {
				retryAfter := resetAt - time.Now().Unix()
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				resolved.OnLimitReached(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPRateLimitPeriod builds a per-caller rate limit admitting requests
// requests per period, keyed by DefaultKeyFunc.
func IPRateLimitPeriod(requests int, period time.Duration) mux.MiddlewareFunc {
	return RateLimit(RateLimitConfig{
		RequestsPerSecond: float64(requests) / period.Seconds(),
		BurstSize:         requests,
		KeyFunc:           DefaultKeyFunc,
	})
}

// GlobalRateLimitPeriod builds a single shared-bucket rate limit admitting
// requests requests per period across every caller.
func GlobalRateLimitPeriod(requests int, period time.Duration) mux.MiddlewareFunc {
	return RateLimit(RateLimitConfig{
		RequestsPerSecond: float64(requests) / period.Seconds(),
		BurstSize:         requests,
		KeyFunc:           func(*http.Request) string { return "global" },
	})
}

// rolePolicy is the (requests/minute, burst) pair for one principal role.
type rolePolicy struct {
	requestsPerMinute float64
	burstCapacity     int
}

var rolePolicies = map[authctx.Role]rolePolicy{
	authctx.RoleAdmin:     {100_000, 120_000},
	authctx.RoleDeveloper: {10_000, 12_000},
	authctx.RoleViewer:    {1_000, 1_200},
	authctx.RoleBilling:   {1_000, 1_200},
}

func policyForRole(r authctx.Role) rolePolicy {
	if p, ok := rolePolicies[r]; ok {
		return p
	}
	return rolePolicies[authctx.RoleViewer]
}

// RoleBased builds the analytics API's production rate limiter: per-role
// token buckets keyed on (user id, path), backed by store (a RedisStore in
// every deployment with more than one API instance). It must run after the
// auth middleware so an AuthContext is attached to the request.
func RoleBased(store Store) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, _ := authctx.AuthContextFromRequest(r)
			policy := policyForRole(ac.Role)
			key := AuthKeyFunc(r)

			allowed, remaining, limit, resetAt, err := store.Allow(
				r.Context(), key, float64(policy.burstCapacity), policy.requestsPerMinute/60, 60*time.Second)
			if err != nil {
				apperror.WriteHTTP(w, err, "")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

			if !allowed {
				retryAfter := resetAt - time.Now().Unix()
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				apperror.WriteHTTP(w, apperror.New(apperror.CodeRateLimitExceeded, "too many requests"), "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
