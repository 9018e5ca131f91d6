package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cyberdigest/internal/model"
)

// Cache is the cross-user scraper cache (spec.md §4.1). Entries are keyed
// by source URL and hold parsed items, which carry no source id; Scrape
// returns them without attaching one, and the orchestrator sets the
// source id only when it persists a new article, so the cache stays
// side-effect free w.r.t. the caller's database identity (invariant 2 in
// spec.md §8).
type Cache interface {
	Get(ctx context.Context, url string) ([]model.ParsedItem, bool, error)
	Set(ctx context.Context, url string, items []model.ParsedItem, ttl time.Duration) error
}

// MemoryCache is the process-wide map-behind-a-mutex design spec.md §9
// calls out directly ("an owned map behind a mutex with a stale-check-on-
// read"). It backs tests and any deployment that runs without Redis.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	items     []model.ParsedItem
	expiresAt time.Time
}

// NewMemoryCache constructs an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, url string) ([]model.ParsedItem, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, url)
		return nil, false, nil
	}
	out := make([]model.ParsedItem, len(entry.items))
	copy(out, entry.items)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, url string, items []model.ParsedItem, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]model.ParsedItem, len(items))
	copy(stored, items)
	c.entries[url] = memoryEntry{items: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

// RedisCache shares the scraper cache across process instances via Redis,
// the cross-tenant store used elsewhere in the pack (CrazyForks-quaily-
// journalist's internal/storage/redis_store.go). Redis's own EX option
// supplies the TTL, so no manual staleness bookkeeping is needed here.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps an existing go-redis client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func cacheKey(url string) string {
	return "scrape:source:" + url
}

func (c *RedisCache) Get(ctx context.Context, url string) ([]model.ParsedItem, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(url)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scrape cache read failed: %w", err)
	}
	var items []model.ParsedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("scrape cache entry corrupt: %w", err)
	}
	return items, true, nil
}

func (c *RedisCache) Set(ctx context.Context, url string, items []model.ParsedItem, ttl time.Duration) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("scrape cache marshal failed: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(url), raw, ttl).Err(); err != nil {
		return fmt.Errorf("scrape cache write failed: %w", err)
	}
	return nil
}
