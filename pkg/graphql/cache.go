package graphql

import (
	"encoding/json"
	"sync"
	"time"
)

// FetchPolicy controls how Query uses the cache
type FetchPolicy int

const (
	// NetworkFirst asks the server and falls back to the cache on network failure
	NetworkFirst FetchPolicy = iota
	// CacheFirst answers from the cache when possible
	CacheFirst
	// NetworkOnly never reads the cache but still stores results
	NetworkOnly
)

func (p FetchPolicy) String() string {
	switch p {
	case CacheFirst:
		return "cache-first"
	case NetworkOnly:
		return "network-only"
	default:
		return "network-first"
	}
}

// ParseFetchPolicy accepts the names returned by String. Unknown or empty
// names give NetworkFirst.
func ParseFetchPolicy(name string) FetchPolicy {
	switch name {
	case "cache-first":
		return CacheFirst
	case "network-only":
		return NetworkOnly
	default:
		return NetworkFirst
	}
}

type cacheEntry struct {
	raw      []byte
	storedAt time.Time
}

// Cache stores raw query results keyed by query and variables
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

func cacheKey(query string, vars map[string]any) string {
	if len(vars) == 0 {
		return query
	}
	// encoding/json sorts map keys, so equal variables give equal keys
	data, err := json.Marshal(vars)
	if err != nil {
		return query
	}
	return query + "\x00" + string(data)
}

func (c *Cache) get(key string) ([]byte, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.raw, e.storedAt, ok
}

func (c *Cache) put(key string, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{raw: raw, storedAt: time.Now()}
}

// Reset drops every entry
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of cached results
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
