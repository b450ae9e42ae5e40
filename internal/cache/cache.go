package cache

import (
	"sync"
	"sync/atomic"

	"github.com/golang/geo/s2"

	"github.com/dpup/scanplan/internal/lib/geo"
)

// CoverageCache memoizes S2 cell coverage blocks keyed by (size, level, cell).
// Entries are insert-only and never expire; one cache is shared by every
// worker of a run and may be reused across runs.
type CoverageCache struct {
	entries map[geo.CoverageKey][]s2.CellID
	mutex   sync.RWMutex

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCoverageCache creates an empty coverage cache
func NewCoverageCache() *CoverageCache {
	return &CoverageCache{
		entries: make(map[geo.CoverageKey][]s2.CellID),
	}
}

// GetOrCompute returns the cached block for key, computing and storing it on
// a miss. Concurrent misses for the same key may both compute; the first
// stored value wins so every caller observes the same slice.
func (c *CoverageCache) GetOrCompute(key geo.CoverageKey, compute func() []s2.CellID) []s2.CellID {
	c.mutex.RLock()
	cells, exists := c.entries[key]
	c.mutex.RUnlock()

	if exists {
		c.hits.Add(1)
		return cells
	}
	c.misses.Add(1)

	computed := compute()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if cells, exists := c.entries[key]; exists {
		return cells
	}
	c.entries[key] = computed
	return computed
}

// Len returns the number of cached blocks
func (c *CoverageCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Track returns a counter for one run's lookups against c. Entries stay
// shared; only the hit and miss figures are per run.
func (c *CoverageCache) Track() *RunCounter {
	return &RunCounter{cache: c}
}

// RunCounter is a geo.CoverageMemo that counts the lookups made through it
// before delegating to the shared cache.
type RunCounter struct {
	cache *CoverageCache

	hits   atomic.Int64
	misses atomic.Int64
}

// GetOrCompute looks key up in the shared cache. A lookup counts as a miss
// only when this call ran compute.
func (r *RunCounter) GetOrCompute(key geo.CoverageKey, compute func() []s2.CellID) []s2.CellID {
	computed := false
	cells := r.cache.GetOrCompute(key, func() []s2.CellID {
		computed = true
		return compute()
	})
	if computed {
		r.misses.Add(1)
	} else {
		r.hits.Add(1)
	}
	return cells
}

// Stats returns this run's lookups and the shared cache size
func (r *RunCounter) Stats() CacheStats {
	return CacheStats{
		TotalEntries: r.cache.Len(),
		Hits:         r.hits.Load(),
		Misses:       r.misses.Load(),
	}
}

// Stats returns cache statistics
func (c *CoverageCache) Stats() CacheStats {
	c.mutex.RLock()
	total := len(c.entries)
	c.mutex.RUnlock()

	return CacheStats{
		TotalEntries: total,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
	}
}

// CacheStats provides cache usage statistics
type CacheStats struct {
	TotalEntries int   `json:"total_entries" yaml:"total_entries"`
	Hits         int64 `json:"hits" yaml:"hits"`
	Misses       int64 `json:"misses" yaml:"misses"`
}
