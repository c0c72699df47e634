package capability

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ReferenceCache memoizes fetched reference content so repeat redesign runs
// stay within the warm-path deadline budget. Entries expire after the TTL; a
// cron-scheduled sweep prunes expired entries so the map does not grow
// unbounded between hits.
type ReferenceCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	cron    *cron.Cron
}

type cacheEntry struct {
	content   string
	fetchedAt time.Time
}

// DefaultReferenceTTL is how long fetched reference content stays reusable.
const DefaultReferenceTTL = 15 * time.Minute

// NewReferenceCache creates a cache with the given TTL (DefaultReferenceTTL
// when zero) and starts the sweep schedule.
func NewReferenceCache(ttl time.Duration, sweepSpec string) (*ReferenceCache, error) {
	if ttl <= 0 {
		ttl = DefaultReferenceTTL
	}
	if sweepSpec == "" {
		sweepSpec = "*/10 * * * *"
	}

	c := &ReferenceCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		cron:    cron.New(),
	}
	if _, err := c.cron.AddFunc(sweepSpec, c.sweep); err != nil {
		return nil, err
	}
	c.cron.Start()
	return c, nil
}

// Get returns cached content for a URL if present and fresh.
func (c *ReferenceCache) Get(url string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[url]
	if !ok || time.Since(e.fetchedAt) > c.ttl {
		return "", false
	}
	return e.content, true
}

// Put stores fetched content for a URL.
func (c *ReferenceCache) Put(url, content string) {
	c.mu.Lock()
	c.entries[url] = cacheEntry{content: content, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Len returns the number of entries currently held, expired included.
func (c *ReferenceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweep schedule.
func (c *ReferenceCache) Close() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// sweep removes expired entries.
func (c *ReferenceCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for url, e := range c.entries {
		if now.Sub(e.fetchedAt) > c.ttl {
			delete(c.entries, url)
		}
	}
}
