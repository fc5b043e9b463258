// Package tier implements one logical cache (raw bytes, decompressed bytes, formatted documents,
// DNS records, TLS sessions, open connections) with O(1) accounting, lock pinning and LRU reclamation.
//
// Every mutation is serialized by the tier mutex; counters and quota settings are atomics so that
// reporting and quota updates never wait on it.
package tier

import (
	"container/list"
	"fmt"
	"github.com/Borislavv/go-ash-tiers/internal/tier/model"
	"golang.org/x/sync/singleflight"
	"sync"
	"sync/atomic"
)

const defaultLowWaterCoefficient = 0.75

// Reporter receives invariant violations detected by a tier.
type Reporter interface {
	Report(tier, key string, err error)
}

type noopReporter struct{}

func (noopReporter) Report(string, string, error) {}

// Options configure a tier. Zero quotas mean no ceiling on that dimension.
type Options struct {
	QuotaBytes   int64
	QuotaEntries int64

	// Aggressive makes reclamation proactive: it triggers above the low-water mark
	// (quota * LowWaterCoefficient) and reclaims down to it.
	Aggressive          bool
	LowWaterCoefficient float64

	// Background marks tiers whose Loading entries belong to network/DNS/TLS operations
	// that are aborted by "abort background connections".
	Background bool

	// OnEvict is called outside the tier mutex once an entry left the tier.
	OnEvict func(e *model.Entry)

	Reporter Reporter
}

type Tier struct {
	mu    sync.Mutex
	name  string
	items map[string]*model.Entry
	lru   *list.List // front: most recently used

	quotaBytes   atomic.Int64
	quotaEntries atomic.Int64
	aggressive   atomic.Bool
	lowWater     float64
	background   bool

	bytes   atomic.Int64
	entries atomic.Int64
	locked  atomic.Int64
	loading atomic.Int64

	onEvict  func(e *model.Entry)
	reporter Reporter
	counters *tierCounters
	flights  singleflight.Group
}

func New(name string, opts Options) *Tier {
	t := &Tier{
		name:       name,
		items:      make(map[string]*model.Entry),
		lru:        list.New(),
		lowWater:   opts.LowWaterCoefficient,
		background: opts.Background,
		onEvict:    opts.OnEvict,
		reporter:   opts.Reporter,
		counters:   newTierCounters(),
	}
	if t.lowWater <= 0 || t.lowWater > 1 {
		t.lowWater = defaultLowWaterCoefficient
	}
	if t.reporter == nil {
		t.reporter = noopReporter{}
	}
	t.quotaBytes.Store(max(opts.QuotaBytes, 0))
	t.quotaEntries.Store(max(opts.QuotaEntries, 0))
	t.aggressive.Store(opts.Aggressive)
	return t
}

func (t *Tier) Name() string          { return t.name }
func (t *Tier) Background() bool      { return t.background }
func (t *Tier) TotalBytes() int64     { return t.bytes.Load() }
func (t *Tier) TotalEntries() int64   { return t.entries.Load() }
func (t *Tier) LockedEntries() int64  { return t.locked.Load() }
func (t *Tier) LoadingEntries() int64 { return t.loading.Load() }
func (t *Tier) QuotaBytes() int64     { return t.quotaBytes.Load() }
func (t *Tier) QuotaEntries() int64   { return t.quotaEntries.Load() }
func (t *Tier) Aggressive() bool      { return t.aggressive.Load() }
func (t *Tier) Metrics() Metrics      { return t.counters.snapshot() }

// SetQuota takes effect on the next ShrinkToQuota call.
func (t *Tier) SetQuota(bytes, entries int64) {
	t.quotaBytes.Store(max(bytes, 0))
	t.quotaEntries.Store(max(entries, 0))
}

// SetAggressive takes effect on the next ShrinkToQuota call.
func (t *Tier) SetAggressive(on bool) { t.aggressive.Store(on) }

// Lookup returns the entry for key and marks it recently used. Lock state is untouched.
func (t *Tier) Lookup(key string) (*model.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.items[key]
	if !ok {
		t.counters.misses.Add(1)
		return nil, false
	}
	t.counters.hits.Add(1)
	t.touchUnlocked(e)
	return e, true
}

// InsertOrGet returns the present entry whatever its state, or creates a Loading one.
// Creation is atomic: concurrent callers for one key observe a single entry.
func (t *Tier) InsertOrGet(key string) (e *model.Entry, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.items[key]; ok {
		t.counters.hits.Add(1)
		t.touchUnlocked(e)
		return e, false
	}
	t.counters.misses.Add(1)
	return t.insertUnlocked(key), true
}

// Claim is InsertOrGet that also locks a created entry for its producer, so that no
// reclamation can slip in between creation and the first lock.
func (t *Tier) Claim(key string) (e *model.Entry, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.items[key]; ok {
		t.counters.hits.Add(1)
		t.touchUnlocked(e)
		return e, false
	}
	t.counters.misses.Add(1)
	e = t.insertUnlocked(key)
	e.IncLocks()
	t.locked.Add(1)
	return e, true
}

// Peek returns the entry for key without marking it used or counting a hit.
func (t *Tier) Peek(key string) (*model.Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.items[key]
	return e, ok
}

// Create inserts a new Loading entry and fails with ErrDuplicateKey when key is present.
func (t *Tier) Create(key string) (*model.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[key]; ok {
		return nil, fmt.Errorf("create %s/%s: %w", t.name, key, ErrDuplicateKey)
	}
	return t.insertUnlocked(key), nil
}

// Replace destroys an unlocked entry under key (if any) and creates a fresh Loading one.
func (t *Tier) Replace(key string) (*model.Entry, error) {
	t.mu.Lock()
	var victim *model.Entry
	if old, ok := t.items[key]; ok {
		if old.IsLocked() {
			t.mu.Unlock()
			return nil, fmt.Errorf("replace %s/%s: %w", t.name, key, ErrEntryLocked)
		}
		t.evictUnlocked(old)
		victim = old
	}
	e := t.insertUnlocked(key)
	t.mu.Unlock()

	if victim != nil {
		t.finish(victim)
	}
	return e, nil
}

// AppendBytes grows a Loading entry. Capacity is enforced later by reclamation.
func (t *Tier) AppendBytes(e *model.Entry, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ownsUnlocked(e) {
		return fmt.Errorf("append %s/%s: %w", t.name, e.Key(), ErrEntryDestroyed)
	}
	if e.State() != model.Loading {
		return fmt.Errorf("append %s/%s: %w", t.name, e.Key(), ErrNotLoading)
	}
	e.AppendPayload(data)
	e.AddSize(int64(len(data)))
	t.bytes.Add(int64(len(data)))
	return nil
}

// Resize sets the accounted size of a live entry in place, for resources that carry no payload.
func (t *Tier) Resize(e *model.Entry, size int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ownsUnlocked(e) {
		return fmt.Errorf("resize %s/%s: %w", t.name, e.Key(), ErrEntryDestroyed)
	}
	delta := max(size, 0) - e.Size()
	e.AddSize(delta)
	t.bytes.Add(delta)
	return nil
}

// Attach binds an external resource (connection, session state, addresses) to a live entry.
func (t *Tier) Attach(e *model.Entry, v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ownsUnlocked(e) {
		return fmt.Errorf("attach %s/%s: %w", t.name, e.Key(), ErrEntryDestroyed)
	}
	e.SetValue(v)
	return nil
}

// Finalize moves Loading to Ready. It is a no-op for Ready entries.
func (t *Tier) Finalize(e *model.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ownsUnlocked(e) {
		return fmt.Errorf("finalize %s/%s: %w", t.name, e.Key(), ErrEntryDestroyed)
	}
	if e.State() == model.Loading {
		e.SealPayload()
		e.SetState(model.Ready)
		t.loading.Add(-1)
	}
	return nil
}

// Lock pins the entry against eviction and marks it recently used.
func (t *Tier) Lock(e *model.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ownsUnlocked(e) {
		return fmt.Errorf("lock %s/%s: %w", t.name, e.Key(), ErrEntryDestroyed)
	}
	if e.IncLocks() == 1 {
		t.locked.Add(1)
	}
	t.touchUnlocked(e)
	return nil
}

// Unlock releases one pin. An unlock on a zero count is reported and ignored.
func (t *Tier) Unlock(e *model.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ownsUnlocked(e) {
		// Aborted entries drop their locks on destruction; late unlocks are expected.
		return fmt.Errorf("unlock %s/%s: %w", t.name, e.Key(), ErrEntryDestroyed)
	}
	left, ok := e.DecLocks()
	if !ok {
		t.counters.underflows.Add(1)
		err := fmt.Errorf("unlock %s/%s: %w", t.name, e.Key(), ErrUnlockUnderflow)
		t.reporter.Report(t.name, e.Key(), err)
		return err
	}
	if left == 0 {
		t.locked.Add(-1)
	}
	return nil
}

// Evict destroys an unlocked entry and releases its bytes from the tally.
func (t *Tier) Evict(e *model.Entry) error {
	t.mu.Lock()
	if !t.ownsUnlocked(e) {
		t.mu.Unlock()
		return fmt.Errorf("evict %s/%s: %w", t.name, e.Key(), ErrEntryDestroyed)
	}
	if e.IsLocked() {
		t.mu.Unlock()
		return fmt.Errorf("evict %s/%s: %w", t.name, e.Key(), ErrEntryLocked)
	}
	t.evictUnlocked(e)
	t.mu.Unlock()

	t.finish(e)
	return nil
}

// Abort destroys a Loading entry whatever its lock count: the background operation
// that held those locks is gone.
func (t *Tier) Abort(e *model.Entry) error {
	t.mu.Lock()
	if !t.ownsUnlocked(e) {
		t.mu.Unlock()
		return fmt.Errorf("abort %s/%s: %w", t.name, e.Key(), ErrEntryDestroyed)
	}
	if e.State() != model.Loading {
		t.mu.Unlock()
		return fmt.Errorf("abort %s/%s: %w", t.name, e.Key(), ErrNotLoading)
	}
	t.abortUnlocked(e)
	t.mu.Unlock()

	t.finish(e)
	return nil
}

// AbortLoading aborts every Loading entry and returns how many were destroyed.
func (t *Tier) AbortLoading() int64 {
	t.mu.Lock()
	var victims []*model.Entry
	for _, e := range t.items {
		if e.State() == model.Loading {
			victims = append(victims, e)
		}
	}
	for _, e := range victims {
		t.abortUnlocked(e)
	}
	t.mu.Unlock()

	t.finish(victims...)
	return int64(len(victims))
}

// Walk visits entries from most to least recently used under the tier mutex.
// The callback must not call back into the tier.
func (t *Tier) Walk(fn func(e *model.Entry) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for el := t.lru.Front(); el != nil; el = el.Next() {
		if !fn(el.Value.(*model.Entry)) {
			return
		}
	}
}

/**
 * Private API. *Unlocked methods expect t.mu held.
 */

func (t *Tier) ownsUnlocked(e *model.Entry) bool {
	cur, ok := t.items[e.Key()]
	return ok && cur == e
}

func (t *Tier) insertUnlocked(key string) *model.Entry {
	e := model.NewEntry(key)
	e.Elem = t.lru.PushFront(e)
	t.items[key] = e
	t.entries.Add(1)
	t.loading.Add(1)
	t.counters.created.Add(1)
	return e
}

func (t *Tier) touchUnlocked(e *model.Entry) {
	e.Touch()
	if e.Elem != nil {
		t.lru.MoveToFront(e.Elem)
	}
}

func (t *Tier) abortUnlocked(e *model.Entry) {
	if e.ResetLocks() > 0 {
		t.locked.Add(-1)
	}
	t.removeUnlocked(e)
	t.counters.aborted.Add(1)
}

func (t *Tier) evictUnlocked(e *model.Entry) {
	t.removeUnlocked(e)
	t.counters.evictedItems.Add(1)
	t.counters.evictedBytes.Add(e.Size())
}

// removeUnlocked unlinks the entry and releases its accounting; finish completes destruction.
func (t *Tier) removeUnlocked(e *model.Entry) {
	if e.State() == model.Loading {
		t.loading.Add(-1)
	}
	e.SetState(model.Evicting)
	delete(t.items, e.Key())
	if e.Elem != nil {
		t.lru.Remove(e.Elem)
		e.Elem = nil
	}
	t.entries.Add(-1)
	t.bytes.Add(-e.Size())
}

func (t *Tier) finish(victims ...*model.Entry) {
	for _, e := range victims {
		if t.onEvict != nil {
			t.onEvict(e)
		}
		e.SetState(model.Destroyed)
	}
}
