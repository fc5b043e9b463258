package tier

import (
	"github.com/Borislavv/go-ash-tiers/internal/tier/model"
)

// noLimit marks a dimension without a ceiling.
const noLimit int64 = -1

// Reclamation describes one reclamation pass. A shortfall is not an error: it means the
// remaining entries were pinned or still loading.
type Reclamation struct {
	FreedBytes       int64
	FreedEntries     int64
	ShortfallBytes   int64
	ShortfallEntries int64
}

// Partial reports whether the pass stopped before reaching its target.
func (r Reclamation) Partial() bool {
	return r.ShortfallBytes > 0 || r.ShortfallEntries > 0
}

func (r *Reclamation) Add(o Reclamation) {
	r.FreedBytes += o.FreedBytes
	r.FreedEntries += o.FreedEntries
	r.ShortfallBytes += o.ShortfallBytes
	r.ShortfallEntries += o.ShortfallEntries
}

// ShrinkToQuota evicts unlocked Ready entries, least recently used first, until the tier is
// within quota (the low-water mark when aggressive) or nothing evictable remains.
func (t *Tier) ShrinkToQuota() Reclamation {
	limitBytes, limitEntries := t.limits()

	t.mu.Lock()
	victims, r := t.evictUntilWithinLimitUnlocked(limitBytes, limitEntries)
	t.mu.Unlock()

	t.finish(victims...)
	return r
}

// NeedsReclaim reports whether a ShrinkToQuota pass would have work to do.
func (t *Tier) NeedsReclaim() bool {
	limitBytes, limitEntries := t.limits()
	return !t.within(limitBytes, limitEntries)
}

// FlushAll evicts every unlocked entry regardless of quota. Locked entries survive
// and are reported as the shortfall.
func (t *Tier) FlushAll() Reclamation {
	t.mu.Lock()
	var (
		r       Reclamation
		victims []*model.Entry
	)
	for el := t.lru.Back(); el != nil; {
		prev := el.Prev()
		if e := el.Value.(*model.Entry); !e.IsLocked() {
			t.evictUnlocked(e)
			victims = append(victims, e)
			r.FreedBytes += e.Size()
			r.FreedEntries++
		}
		el = prev
	}
	r.ShortfallBytes = t.bytes.Load()
	r.ShortfallEntries = t.entries.Load()
	t.mu.Unlock()

	t.finish(victims...)
	return r
}

// ExpireStale evicts unlocked Ready entries whose expiry passed at now (unix nano).
func (t *Tier) ExpireStale(now int64) Reclamation {
	t.mu.Lock()
	var (
		r       Reclamation
		victims []*model.Entry
	)
	for el := t.lru.Back(); el != nil; {
		prev := el.Prev()
		if e := el.Value.(*model.Entry); e.Evictable() && e.IsExpired(now) {
			t.evictUnlocked(e)
			victims = append(victims, e)
			r.FreedBytes += e.Size()
			r.FreedEntries++
		}
		el = prev
	}
	t.mu.Unlock()

	t.finish(victims...)
	return r
}

// limits returns the reclamation targets for the current quota and aggressiveness.
func (t *Tier) limits() (limitBytes, limitEntries int64) {
	limitBytes, limitEntries = noLimit, noLimit
	if q := t.quotaBytes.Load(); q > 0 {
		limitBytes = q
	}
	if q := t.quotaEntries.Load(); q > 0 {
		limitEntries = q
	}
	if t.aggressive.Load() {
		if limitBytes != noLimit {
			limitBytes = int64(float64(limitBytes) * t.lowWater)
		}
		if limitEntries != noLimit {
			limitEntries = int64(float64(limitEntries) * t.lowWater)
		}
	}
	return
}

func (t *Tier) within(limitBytes, limitEntries int64) bool {
	if limitBytes != noLimit && t.bytes.Load() > limitBytes {
		return false
	}
	if limitEntries != noLimit && t.entries.Load() > limitEntries {
		return false
	}
	return true
}

// evictUntilWithinLimitUnlocked walks the LRU list from its tail. Locked and Loading entries
// are skipped; in-flight producers and current users keep their view intact.
func (t *Tier) evictUntilWithinLimitUnlocked(limitBytes, limitEntries int64) (victims []*model.Entry, r Reclamation) {
	for el := t.lru.Back(); el != nil && !t.within(limitBytes, limitEntries); {
		prev := el.Prev()
		if e := el.Value.(*model.Entry); e.Evictable() {
			t.evictUnlocked(e)
			victims = append(victims, e)
			r.FreedBytes += e.Size()
			r.FreedEntries++
		}
		el = prev
	}

	if limitBytes != noLimit {
		r.ShortfallBytes = max(t.bytes.Load()-limitBytes, 0)
	}
	if limitEntries != noLimit {
		r.ShortfallEntries = max(t.entries.Load()-limitEntries, 0)
	}
	return victims, r
}
