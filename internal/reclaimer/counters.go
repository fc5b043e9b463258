package reclaimer

import "sync/atomic"

type reclaimerCounters struct {
	scans      atomic.Int64
	scanHits   atomic.Int64
	freedItems atomic.Int64
	freedBytes atomic.Int64
}

func (c *reclaimerCounters) snapshot() (scans, hits, freedItems, freedBytes int64) {
	return c.scans.Load(), c.scanHits.Load(), c.freedItems.Load(), c.freedBytes.Load()
}

func newReclaimerCounters() *reclaimerCounters {
	return &reclaimerCounters{}
}
