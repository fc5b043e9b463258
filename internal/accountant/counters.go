package accountant

import "sync/atomic"

type accountantCounters struct {
	shrinkCalls  atomic.Int64
	freedBytes   atomic.Int64
	freedEntries atomic.Int64
	partial      atomic.Int64 // passes that stopped on locked or loading entries
	aborted      atomic.Int64 // loading entries destroyed by abort calls
	expired      atomic.Int64
}

type Metrics struct {
	ShrinkCalls  int64
	FreedBytes   int64
	FreedEntries int64
	Partial      int64
	Aborted      int64
	Expired      int64
}

func newAccountantCounters() *accountantCounters {
	return &accountantCounters{}
}

func (c *accountantCounters) snapshot() Metrics {
	return Metrics{
		ShrinkCalls:  c.shrinkCalls.Load(),
		FreedBytes:   c.freedBytes.Load(),
		FreedEntries: c.freedEntries.Load(),
		Partial:      c.partial.Load(),
		Aborted:      c.aborted.Load(),
		Expired:      c.expired.Load(),
	}
}
