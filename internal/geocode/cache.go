package geocode

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores suggestion lists per query so repeated autocomplete input
// does not hit the paid API.
type Cache interface {
	Get(ctx context.Context, query string) ([]Suggestion, bool)
	Set(ctx context.Context, query string, sugg []Suggestion)
}

// MemCache is a tiny in-memory TTL cache keyed by the raw query string.
type MemCache struct {
	mu    sync.RWMutex
	store map[string]memEntry
	ttl   time.Duration
}

type memEntry struct {
	v  []Suggestion
	ts time.Time
}

func NewMemCache(ttl time.Duration) *MemCache {
	return &MemCache{store: make(map[string]memEntry), ttl: ttl}
}

func (c *MemCache) Get(ctx context.Context, query string) ([]Suggestion, bool) {
	c.mu.RLock()
	e, ok := c.store[query]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, query)
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

func (c *MemCache) Set(ctx context.Context, query string, sugg []Suggestion) {
	c.mu.Lock()
	c.store[query] = memEntry{v: sugg, ts: time.Now()}
	c.mu.Unlock()
}

// RedisCache shares the suggestion cache across server instances.
// Failures are treated as misses; the geocoder still works without Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, ttl time.Duration) *RedisCache {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisCache{client: c, ttl: ttl}
}

func cacheKey(query string) string { return "geocode:q:" + query }

func (c *RedisCache) Get(ctx context.Context, query string) ([]Suggestion, bool) {
	b, err := c.client.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		return nil, false
	}
	var sugg []Suggestion
	if err := json.Unmarshal(b, &sugg); err != nil {
		return nil, false
	}
	return sugg, true
}

func (c *RedisCache) Set(ctx context.Context, query string, sugg []Suggestion) {
	b, err := json.Marshal(sugg)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(query), b, c.ttl).Err()
}
