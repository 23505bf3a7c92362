package cache

import "sync/atomic"

// counters tracks hit/miss/eviction totals across all namespace views of a
// facade.
type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Statistics is a snapshot of cache state and counters.
type Statistics struct {
	TotalEntries   int64   `json:"totalEntries"`
	TotalSizeBytes int64   `json:"totalSizeBytes"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	HitRate        float64 `json:"hitRate"`
	MissRate       float64 `json:"missRate"`
	Evictions      int64   `json:"evictions"`
}

func (c *counters) snapshot() (hits, misses, evictions int64, hitRate, missRate float64) {
	hits = c.hits.Load()
	misses = c.misses.Load()
	evictions = c.evictions.Load()
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
		missRate = float64(misses) / float64(total)
	}
	return
}
