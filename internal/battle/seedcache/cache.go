// Package seedcache stores ledger seeds keyed by view.
//
// The cache is insert-only: a seed for a view never changes, so the
// first write wins. It is bounded because the engine only ever reads
// the seed for a round's exact deadline view; older entries are a
// memory guard concern, not a correctness one.
package seedcache

import "sync"

// DefaultBound is the default maximum number of cached seeds.
const DefaultBound = 128

// Cache is a bounded, insert-only map from view to seed bytes.
type Cache struct {
	mu    sync.Mutex
	bound int
	seeds map[uint64][]byte
}

// New creates a cache holding at most bound seeds. A non-positive
// bound falls back to DefaultBound.
func New(bound int) *Cache {
	if bound <= 0 {
		bound = DefaultBound
	}
	return &Cache{
		bound: bound,
		seeds: make(map[uint64][]byte),
	}
}

// Put stores the seed for a view. It reports whether the entry was
// inserted; an existing entry is never overwritten. When the bound is
// exceeded the lowest cached view is evicted.
func (c *Cache) Put(view uint64, seed []byte) bool {
	if len(seed) == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seeds[view]; ok {
		return false
	}
	c.seeds[view] = append([]byte(nil), seed...)

	for len(c.seeds) > c.bound {
		lowest := view
		for v := range c.seeds {
			if v < lowest {
				lowest = v
			}
		}
		delete(c.seeds, lowest)
	}
	return true
}

// Get returns the seed for a view, if cached.
func (c *Cache) Get(view uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seed, ok := c.seeds[view]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), seed...), true
}

// Len returns the number of cached seeds.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seeds)
}

// Clear evicts every cached seed.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeds = make(map[uint64][]byte)
}
