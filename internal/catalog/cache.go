package catalog

import "sync"

// Cache holds the last-known catalog and replaces it only when a newly
// observed signature differs; collecting the catalog is the caller's job.
// Grounded on
// original_source/agent/element_catalog.py's update_cache_from_signature
// module-level cache (SPEC_FULL.md supplemented feature #5).
type Cache struct {
	mu          sync.Mutex
	current     *Catalog
	lastVersion string
}

// NewCache builds an empty catalog cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the cached catalog, if any.
func (c *Cache) Get() (*Catalog, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, false
	}
	return c.current, true
}

// UpdateFromSignature replaces the cache only if signature differs from
// the last observed one, mirroring update_cache_from_signature's
// invalidate-on-change behavior.
func (c *Cache) UpdateFromSignature(signature string, newCatalog *Catalog) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if signature == c.lastVersion && c.current != nil {
		return
	}
	c.current = newCatalog
	c.lastVersion = signature
}

// Invalidate forces the next Get to report a miss.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.lastVersion = ""
}
