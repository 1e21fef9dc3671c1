package graph

import (
	"sync"
	"time"

	"github.com/scholartech/scholargraph/pkg/scholar"
)

// searchCache is a TTL + FIFO bounded cache of search results. Entries past
// their TTL are evicted on access; when full, the oldest inserted entry goes
// first. Hits hand out deep copies so callers can mutate freely.
type searchCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*cacheEntry
	order      []string
}

type cacheEntry struct {
	result    *scholar.SearchResult
	expiresAt time.Time
}

func newSearchCache(ttl time.Duration, maxEntries int) *searchCache {
	return &searchCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
	}
}

func (c *searchCache) enabled() bool { return c.ttl > 0 }

func (c *searchCache) get(key string) *scholar.SearchResult {
	if !c.enabled() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.removeKey(key)
		return nil
	}
	return entry.result.Clone()
}

func (c *searchCache) put(key string, result *scholar.SearchResult) {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		for c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = &cacheEntry{
		result:    result.Clone(),
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *searchCache) removeKey(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *searchCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
