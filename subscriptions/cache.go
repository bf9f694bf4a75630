package subscriptions

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"subscription_watcher/metrics"
	"subscription_watcher/query"
)

// Cache memoizes compiled queries by their text. Concurrent requests for the
// same uncached text share one compilation. Failed compilations are not
// cached.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*query.Query
	group   singleflight.Group
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*query.Query)}
}

// Get returns the compiled query for text, compiling it on first use.
func (c *Cache) Get(text string) (*query.Query, error) {
	c.mu.RLock()
	q, ok := c.entries[text]
	c.mu.RUnlock()
	if ok {
		metrics.QueryCache.WithValues("hit").Inc()
		return q, nil
	}

	v, err, _ := c.group.Do(text, func() (any, error) {
		c.mu.RLock()
		q, ok := c.entries[text]
		c.mu.RUnlock()
		if ok {
			return q, nil
		}

		q, err := query.Compile(text)
		if err != nil {
			metrics.CompileErrors.Inc()
			return nil, err
		}
		c.mu.Lock()
		c.entries[text] = q
		c.mu.Unlock()
		return q, nil
	})
	metrics.QueryCache.WithValues("miss").Inc()
	if err != nil {
		return nil, err
	}
	return v.(*query.Query), nil
}

// Forget drops text from the cache.
func (c *Cache) Forget(text string) {
	c.mu.Lock()
	delete(c.entries, text)
	c.mu.Unlock()
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
