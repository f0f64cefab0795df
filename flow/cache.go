package flow

import (
	"sync"

	"github.com/chazu/scour/pkg/bytecode"
)

// Cache hands out MethodContexts, recomputing one whenever its method's
// instruction list has changed since it was built. It is safe for
// concurrent use; each method is expected to be worked on by one goroutine
// at a time.
type Cache struct {
	mu      sync.Mutex
	entries map[*bytecode.Method]*MethodContext

	hits, misses int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[*bytecode.Method]*MethodContext)}
}

// Of returns the current MethodContext for method.
func (c *Cache) Of(class *bytecode.Class, method *bytecode.Method) *MethodContext {
	c.mu.Lock()
	mc, ok := c.entries[method]
	if ok && !mc.Stale() {
		c.hits++
		c.mu.Unlock()
		return mc
	}
	c.misses++
	c.mu.Unlock()

	// Analyze outside the lock so other methods are not blocked
	mc = NewMethodContext(class, method)
	mc.cache = c

	c.mu.Lock()
	c.entries[method] = mc
	c.mu.Unlock()
	return mc
}

// Len returns the number of cached contexts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Counters returns the number of lookups served from the cache and the
// number that required analysis.
func (c *Cache) Counters() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
