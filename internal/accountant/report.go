package accountant

import "github.com/Borislavv/go-ash-tiers/internal/tier"

type Mode int

const (
	// CheckQuota reclaims every tier down to its quota (or low-water mark when aggressive).
	CheckQuota Mode = iota
	// FreeAll aborts background loads and evicts every unlocked entry.
	FreeAll
)

func (m Mode) String() string {
	switch m {
	case CheckQuota:
		return "check_quota"
	case FreeAll:
		return "free_all"
	default:
		return "unknown"
	}
}

type ShrinkRequest struct {
	Mode Mode
	// Tiers narrows the pass to the named tiers; empty means all.
	Tiers []string
}

// Snapshot is a point-in-time view of one tier. Files counts entries.
type Snapshot struct {
	Name         string
	Bytes        int64
	Files        int64
	Locked       int64
	Loading      int64
	QuotaBytes   int64
	QuotaEntries int64
	Aggressive   bool
}

type TierReport struct {
	Name string
	tier.Reclamation
}

// Report is the outcome of a Shrink or Expire call. Tiers follow registration order.
type Report struct {
	Mode    Mode
	Tiers   []TierReport
	Aborted int64
}

func (r Report) Total() tier.Reclamation {
	var total tier.Reclamation
	for _, tr := range r.Tiers {
		total.Add(tr.Reclamation)
	}
	return total
}

// Partial reports whether any tier stopped short of its target.
func (r Report) Partial() bool {
	for _, tr := range r.Tiers {
		if tr.Partial() {
			return true
		}
	}
	return false
}
