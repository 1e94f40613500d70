package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/txn2/trip-planner/pkg/metrics"
)

const (
	defaultCacheTTL = 30 * time.Minute
	cachePrefix     = "trip-planner:search:"
)

// Cache lookup results recorded in metrics.
const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

// Cache stores serialized search results.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: time.Now}
}

// Get returns the value for key if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value for ttl.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

// RedisCache stores results in Redis with native key expiry.
type RedisCache struct {
	client backend.UniversalClient
}

// NewRedisCache creates a cache on an existing client.
func NewRedisCache(client backend.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the value for key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading search cache: %w", err)
	}
	return value, true, nil
}

// Set stores value for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("writing search cache: %w", err)
	}
	return nil
}

// CacheConfig configures CachedProvider.
type CacheConfig struct {
	TTL time.Duration
}

// CachedProvider wraps a Provider with a read-through cache. Cache failures
// fall through to the provider.
type CachedProvider struct {
	provider Provider
	cache    Cache
	ttl      time.Duration
	metrics  *metrics.Metrics
}

// NewCachedProvider creates a caching wrapper around a provider. m may be nil.
func NewCachedProvider(provider Provider, cache Cache, cfg CacheConfig, m *metrics.Metrics) *CachedProvider {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &CachedProvider{provider: provider, cache: cache, ttl: ttl, metrics: m}
}

// Flights returns cached flights or queries the provider.
func (c *CachedProvider) Flights(ctx context.Context, q FlightQuery) ([]Flight, error) {
	return cached(ctx, c, "flights", q, func() ([]Flight, error) {
		return c.provider.Flights(ctx, q)
	})
}

// ReturnFlights returns cached return options or queries the provider.
func (c *CachedProvider) ReturnFlights(ctx context.Context, q ReturnFlightQuery) ([]Flight, error) {
	return cached(ctx, c, "return_flights", q, func() ([]Flight, error) {
		return c.provider.ReturnFlights(ctx, q)
	})
}

// BookingOptions always queries the provider; seller prices are not cached.
func (c *CachedProvider) BookingOptions(ctx context.Context, q BookingQuery) (*Booking, error) {
	return c.provider.BookingOptions(ctx, q)
}

// Explore returns cached destinations or queries the provider.
func (c *CachedProvider) Explore(ctx context.Context, q ExploreQuery) ([]Destination, error) {
	return cached(ctx, c, "explore", q, func() ([]Destination, error) {
		return c.provider.Explore(ctx, q)
	})
}

// Hotels returns cached hotels or queries the provider.
func (c *CachedProvider) Hotels(ctx context.Context, q HotelQuery) ([]Hotel, error) {
	return cached(ctx, c, "hotels", q, func() ([]Hotel, error) {
		return c.provider.Hotels(ctx, q)
	})
}

func cached[Q any, R any](ctx context.Context, c *CachedProvider, kind string, q Q, fetch func() ([]R, error)) ([]R, error) {
	key, err := cacheKey(kind, q)
	if err != nil {
		return nil, err
	}

	raw, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		slog.Warn("search cache read failed", "kind", kind, "error", err)
		c.metrics.CacheLookup(cacheError)
	case ok:
		var result []R
		if err := json.Unmarshal(raw, &result); err == nil {
			c.metrics.CacheLookup(cacheHit)
			return result, nil
		}
		c.metrics.CacheLookup(cacheError)
	default:
		c.metrics.CacheLookup(cacheMiss)
	}

	result, err := fetch()
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(result); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			slog.Warn("search cache write failed", "kind", kind, "error", err)
		}
	}
	return result, nil
}

func cacheKey(kind string, q any) (string, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encoding search query: %w", err)
	}
	sum := sha256.Sum256(raw)
	return cachePrefix + kind + ":" + hex.EncodeToString(sum[:]), nil
}

// Verify interface compliance.
var (
	_ Cache    = (*MemoryCache)(nil)
	_ Cache    = (*RedisCache)(nil)
	_ Provider = (*CachedProvider)(nil)
)
