package telemetry

import (
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/lifetimer"
	"github.com/Borislavv/go-ash-tiers/internal/reclaimer"
)

type sampler struct {
	acc       *accountant.Accountant
	reclaimer reclaimer.Reclaimer
	lifetimer lifetimer.Lifetimer
}

func newSampler(acc *accountant.Accountant, r reclaimer.Reclaimer, lt lifetimer.Lifetimer) sampler {
	return sampler{acc: acc, reclaimer: r, lifetimer: lt}
}

// tierSnapshot holds cumulative per-tier counters (monotonic).
type tierSnapshot struct {
	evictedItems uint64
	evictedBytes uint64
	aborted      uint64
	underflows   uint64
}

// snapshot holds cumulative counters (monotonic).
type snapshot struct {
	reclaimScans      uint64
	reclaimHits       uint64
	reclaimFreedItems uint64
	reclaimFreedBytes uint64

	lifetimeScans        uint64
	lifetimeHits         uint64
	lifetimeExpiredItems uint64
	lifetimeExpiredBytes uint64

	shrinkCalls uint64
	partial     uint64

	tiers map[string]tierSnapshot
}

func (s sampler) snapshot() snapshot {
	rScans, rHits, rItems, rBytes := s.reclaimer.Metrics()
	lScans, lHits, lItems, lBytes := s.lifetimer.Metrics()
	am := s.acc.Metrics()

	out := snapshot{
		reclaimScans:      u(rScans),
		reclaimHits:       u(rHits),
		reclaimFreedItems: u(rItems),
		reclaimFreedBytes: u(rBytes),

		lifetimeScans:        u(lScans),
		lifetimeHits:         u(lHits),
		lifetimeExpiredItems: u(lItems),
		lifetimeExpiredBytes: u(lBytes),

		shrinkCalls: u(am.ShrinkCalls),
		partial:     u(am.Partial),

		tiers: make(map[string]tierSnapshot),
	}
	for _, name := range s.acc.Names() {
		t, ok := s.acc.Tier(name)
		if !ok {
			continue
		}
		m := t.Metrics()
		out.tiers[name] = tierSnapshot{
			evictedItems: u(m.EvictedItems),
			evictedBytes: u(m.EvictedBytes),
			aborted:      u(m.Aborted),
			underflows:   u(m.Underflows),
		}
	}
	return out
}

// deltaSnapshot converts cumulative snapshots to per-interval deltas.
// If counters reset (cur < prev), it treats cur as the delta.
func deltaSnapshot(prev, cur snapshot) snapshot {
	d := snapshot{
		reclaimScans:      delta(prev.reclaimScans, cur.reclaimScans),
		reclaimHits:       delta(prev.reclaimHits, cur.reclaimHits),
		reclaimFreedItems: delta(prev.reclaimFreedItems, cur.reclaimFreedItems),
		reclaimFreedBytes: delta(prev.reclaimFreedBytes, cur.reclaimFreedBytes),

		lifetimeScans:        delta(prev.lifetimeScans, cur.lifetimeScans),
		lifetimeHits:         delta(prev.lifetimeHits, cur.lifetimeHits),
		lifetimeExpiredItems: delta(prev.lifetimeExpiredItems, cur.lifetimeExpiredItems),
		lifetimeExpiredBytes: delta(prev.lifetimeExpiredBytes, cur.lifetimeExpiredBytes),

		shrinkCalls: delta(prev.shrinkCalls, cur.shrinkCalls),
		partial:     delta(prev.partial, cur.partial),

		tiers: make(map[string]tierSnapshot, len(cur.tiers)),
	}
	for name, c := range cur.tiers {
		p := prev.tiers[name]
		d.tiers[name] = tierSnapshot{
			evictedItems: delta(p.evictedItems, c.evictedItems),
			evictedBytes: delta(p.evictedBytes, c.evictedBytes),
			aborted:      delta(p.aborted, c.aborted),
			underflows:   delta(p.underflows, c.underflows),
		}
	}
	return d
}

func delta(prev, cur uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}

func u(v int64) uint64 { return uint64(max(v, 0)) }
