package resolver

import (
	"sync"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

// Cache memoizes HEAD results for a single run. Create one per run.
type Cache struct {
	mu      sync.Mutex
	entries map[string]crawler.URLMetadata
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]crawler.URLMetadata)}
}

// Get returns the cached metadata for url.
func (c *Cache) Get(url string) (crawler.URLMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	md, ok := c.entries[url]
	return md, ok
}

// Put stores metadata for url.
func (c *Cache) Put(url string, md crawler.URLMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = md
}

// Len reports the number of cached URLs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
