package tier

import "sync/atomic"

// tierCounters are cumulative and monotonic; telemetry turns them into per-interval deltas.
type tierCounters struct {
	hits         atomic.Int64
	misses       atomic.Int64
	created      atomic.Int64
	evictedItems atomic.Int64
	evictedBytes atomic.Int64
	aborted      atomic.Int64
	underflows   atomic.Int64
}

// Metrics is a point-in-time copy of the tier counters.
type Metrics struct {
	Hits         int64
	Misses       int64
	Created      int64
	EvictedItems int64
	EvictedBytes int64
	Aborted      int64
	Underflows   int64
}

func newTierCounters() *tierCounters {
	return &tierCounters{}
}

func (c *tierCounters) snapshot() Metrics {
	return Metrics{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Created:      c.created.Load(),
		EvictedItems: c.evictedItems.Load(),
		EvictedBytes: c.evictedBytes.Load(),
		Aborted:      c.aborted.Load(),
		Underflows:   c.underflows.Load(),
	}
}
