package lifetimer

import "sync/atomic"

type lifetimerCounters struct {
	scans        atomic.Int64 // total ticks
	scanHits     atomic.Int64 // passes that expired something
	expiredItems atomic.Int64
	expiredBytes atomic.Int64
}

func newLifetimerCounters() *lifetimerCounters {
	return &lifetimerCounters{}
}

func (c *lifetimerCounters) snapshot() (scans, hits, expiredItems, expiredBytes int64) {
	scans = c.scans.Load()
	hits = c.scanHits.Load()
	expiredItems = c.expiredItems.Load()
	expiredBytes = c.expiredBytes.Load()
	return
}
