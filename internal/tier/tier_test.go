package tier

import (
	"errors"
	"fmt"
	"github.com/Borislavv/go-ash-tiers/internal/tier/model"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) Report(_, _ string, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recordingReporter) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// ready inserts a Ready, unlocked entry of the given size.
func ready(t *testing.T, tr *Tier, key string, size int) *model.Entry {
	t.Helper()
	e, err := tr.Create(key)
	require.NoError(t, err)
	require.NoError(t, tr.AppendBytes(e, make([]byte, size)))
	require.NoError(t, tr.Finalize(e))
	return e
}

// TestTier_CreateStartsLoading creates entries in Loading with zero size.
func TestTier_CreateStartsLoading(t *testing.T) {
	tr := New("memory", Options{})

	e, err := tr.Create("http://a/")
	require.NoError(t, err)
	require.Equal(t, model.Loading, e.State())
	require.Equal(t, int64(0), e.Size())
	require.Equal(t, int64(1), tr.TotalEntries())
	require.Equal(t, int64(1), tr.LoadingEntries())
	require.Equal(t, int64(0), tr.TotalBytes())
}

// TestTier_CreateDuplicate fails with ErrDuplicateKey.
func TestTier_CreateDuplicate(t *testing.T) {
	tr := New("memory", Options{})

	_, err := tr.Create("k")
	require.NoError(t, err)

	_, err = tr.Create("k")
	require.ErrorIs(t, err, ErrDuplicateKey)
	require.Equal(t, int64(1), tr.TotalEntries())
}

// TestTier_Replace swaps an unlocked entry and refuses a locked one.
func TestTier_Replace(t *testing.T) {
	tr := New("memory", Options{})
	old := ready(t, tr, "k", 10)

	fresh, err := tr.Replace("k")
	require.NoError(t, err)
	require.NotSame(t, old, fresh)
	require.Equal(t, model.Destroyed, old.State())
	require.Equal(t, model.Loading, fresh.State())
	require.Equal(t, int64(0), tr.TotalBytes())
	require.Equal(t, int64(1), tr.TotalEntries())

	require.NoError(t, tr.Lock(fresh))
	_, err = tr.Replace("k")
	require.ErrorIs(t, err, ErrEntryLocked)
}

// TestTier_InsertOrGetSameKey creates exactly one entry for repeated calls.
func TestTier_InsertOrGetSameKey(t *testing.T) {
	tr := New("memory", Options{})

	first, created := tr.InsertOrGet("k")
	require.True(t, created)

	for i := 0; i < 10; i++ {
		e, created := tr.InsertOrGet("k")
		require.False(t, created)
		require.Same(t, first, e)
	}
	require.Equal(t, int64(1), tr.TotalEntries())
	require.Equal(t, int64(1), tr.Metrics().Created)
}

// TestTier_InsertOrGetConcurrent resolves racing creators to a single entry.
func TestTier_InsertOrGetConcurrent(t *testing.T) {
	tr := New("memory", Options{})

	const goroutines = 64
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make(chan *model.Entry, goroutines)
		creates = make(chan bool, goroutines)
	)
	for i := 0; i < goroutines; i++ {
		wg.Go(func() {
			<-start
			e, created := tr.InsertOrGet("same")
			results <- e
			creates <- created
		})
	}
	close(start)
	wg.Wait()
	close(results)
	close(creates)

	var first *model.Entry
	for e := range results {
		if first == nil {
			first = e
		}
		require.Same(t, first, e)
	}
	var created int
	for c := range creates {
		if c {
			created++
		}
	}
	require.Equal(t, 1, created)
	require.Equal(t, int64(1), tr.TotalEntries())
}

// TestTier_AppendBytesAccounting grows entry and tier tallies.
func TestTier_AppendBytesAccounting(t *testing.T) {
	tr := New("memory", Options{})
	e, _ := tr.Create("k")

	require.NoError(t, tr.AppendBytes(e, []byte("hello ")))
	require.NoError(t, tr.AppendBytes(e, []byte("world")))
	require.Equal(t, int64(11), e.Size())
	require.Equal(t, int64(11), tr.TotalBytes())

	require.NoError(t, tr.Finalize(e))
	require.ErrorIs(t, tr.AppendBytes(e, []byte("x")), ErrNotLoading)
	require.Equal(t, []byte("hello world"), e.Payload())
}

// TestTier_FinalizeIdempotent keeps Ready and size unchanged on a second call.
func TestTier_FinalizeIdempotent(t *testing.T) {
	tr := New("memory", Options{})
	e := ready(t, tr, "k", 42)

	require.NoError(t, tr.Finalize(e))
	require.Equal(t, model.Ready, e.State())
	require.Equal(t, int64(42), e.Size())
	require.Equal(t, int64(0), tr.LoadingEntries())
	require.Equal(t, int64(42), tr.TotalBytes())
}

// TestTier_FinalizeDestroyed fails for entries no longer in the tier.
func TestTier_FinalizeDestroyed(t *testing.T) {
	tr := New("memory", Options{})
	e, _ := tr.Create("k")
	require.NoError(t, tr.Evict(e))

	require.ErrorIs(t, tr.Finalize(e), ErrEntryDestroyed)
}

// TestTier_EvictLocked always fails while the lock count is positive.
func TestTier_EvictLocked(t *testing.T) {
	tr := New("memory", Options{})
	e := ready(t, tr, "k", 10)

	for locks := 1; locks <= 3; locks++ {
		require.NoError(t, tr.Lock(e))
		require.ErrorIs(t, tr.Evict(e), ErrEntryLocked)
	}
	for locks := 3; locks >= 1; locks-- {
		require.ErrorIs(t, tr.Evict(e), ErrEntryLocked)
		require.NoError(t, tr.Unlock(e))
	}

	require.NoError(t, tr.Evict(e))
	require.Equal(t, model.Destroyed, e.State())
	require.Equal(t, int64(0), tr.TotalEntries())
	require.Equal(t, int64(0), tr.TotalBytes())
	require.ErrorIs(t, tr.Evict(e), ErrEntryDestroyed)
}

// TestTier_LockedCounter counts entries, not locks.
func TestTier_LockedCounter(t *testing.T) {
	tr := New("memory", Options{})
	a := ready(t, tr, "a", 1)
	b := ready(t, tr, "b", 1)

	require.NoError(t, tr.Lock(a))
	require.NoError(t, tr.Lock(a))
	require.NoError(t, tr.Lock(b))
	require.Equal(t, int64(2), tr.LockedEntries())

	require.NoError(t, tr.Unlock(a))
	require.Equal(t, int64(2), tr.LockedEntries())
	require.NoError(t, tr.Unlock(a))
	require.NoError(t, tr.Unlock(b))
	require.Equal(t, int64(0), tr.LockedEntries())
}

// TestTier_UnlockUnderflow is reported and ignored.
func TestTier_UnlockUnderflow(t *testing.T) {
	rep := &recordingReporter{}
	tr := New("memory", Options{Reporter: rep})
	e := ready(t, tr, "k", 1)

	err := tr.Unlock(e)
	require.ErrorIs(t, err, ErrUnlockUnderflow)
	require.Equal(t, 1, rep.len())
	require.Equal(t, int32(0), e.LockCount())
	require.Equal(t, int64(0), tr.LockedEntries())
	require.Equal(t, int64(1), tr.Metrics().Underflows)

	// the tier keeps working
	require.NoError(t, tr.Lock(e))
	require.NoError(t, tr.Unlock(e))
}

// TestTier_LookupDoesNotLock keeps the lock count untouched.
func TestTier_LookupDoesNotLock(t *testing.T) {
	tr := New("memory", Options{})
	e := ready(t, tr, "k", 1)

	got, ok := tr.Lookup("k")
	require.True(t, ok)
	require.Same(t, e, got)
	require.Equal(t, int32(0), got.LockCount())

	_, ok = tr.Lookup("missing")
	require.False(t, ok)

	m := tr.Metrics()
	require.Equal(t, int64(1), m.Hits)
	require.Equal(t, int64(1), m.Misses)
}

// TestTier_AbortLoadingEntry destroys a Loading entry and drops its locks.
func TestTier_AbortLoadingEntry(t *testing.T) {
	tr := New("dns", Options{Background: true})
	e, _ := tr.Create("example.com")
	require.NoError(t, tr.Lock(e))
	require.NoError(t, tr.AppendBytes(e, []byte("1.2.3.4")))

	require.NoError(t, tr.Abort(e))
	require.Equal(t, model.Destroyed, e.State())
	require.Equal(t, int64(0), tr.TotalEntries())
	require.Equal(t, int64(0), tr.LockedEntries())
	require.Equal(t, int64(0), tr.LoadingEntries())
	require.Equal(t, int64(0), tr.TotalBytes())

	// late unlock by the aborted producer is not an underflow
	require.ErrorIs(t, tr.Unlock(e), ErrEntryDestroyed)
	require.Equal(t, int64(0), tr.Metrics().Underflows)
}

// TestTier_AbortReadyEntry fails with ErrNotLoading.
func TestTier_AbortReadyEntry(t *testing.T) {
	tr := New("dns", Options{})
	e := ready(t, tr, "k", 1)

	require.ErrorIs(t, tr.Abort(e), ErrNotLoading)
	require.Equal(t, model.Ready, e.State())
}

// TestTier_AbortLoading removes every Loading entry and keeps Ready ones.
func TestTier_AbortLoading(t *testing.T) {
	tr := New("tls_sessions", Options{Background: true})
	keep := ready(t, tr, "ready", 5)
	for i := 0; i < 3; i++ {
		e, _ := tr.Create(fmt.Sprintf("loading-%d", i))
		require.NoError(t, tr.Lock(e))
	}

	require.Equal(t, int64(3), tr.AbortLoading())
	require.Equal(t, int64(1), tr.TotalEntries())
	require.Equal(t, int64(0), tr.LoadingEntries())
	require.Equal(t, int64(0), tr.LockedEntries())
	require.Equal(t, model.Ready, keep.State())
	require.Equal(t, int64(3), tr.Metrics().Aborted)
}

// TestTier_OnEvictCalled runs the eviction callback once per destroyed entry.
func TestTier_OnEvictCalled(t *testing.T) {
	var evicted []string
	tr := New("connections", Options{OnEvict: func(e *model.Entry) {
		require.Equal(t, model.Evicting, e.State())
		evicted = append(evicted, e.Key())
	}})
	a := ready(t, tr, "a", 1)
	ready(t, tr, "b", 1)

	require.NoError(t, tr.Evict(a))
	tr.FlushAll()
	require.ElementsMatch(t, []string{"a", "b"}, evicted)
}

// TestTier_Resize adjusts accounting for payload-less resources.
func TestTier_Resize(t *testing.T) {
	tr := New("connections", Options{})
	e, _ := tr.Create("conn")

	require.NoError(t, tr.Resize(e, 4096))
	require.Equal(t, int64(4096), tr.TotalBytes())
	require.NoError(t, tr.Resize(e, 1024))
	require.Equal(t, int64(1024), tr.TotalBytes())
	require.NoError(t, tr.Resize(e, -5))
	require.Equal(t, int64(0), e.Size())
	require.Equal(t, int64(0), tr.TotalBytes())
}

// TestTier_Attach binds a value to a live entry only.
func TestTier_Attach(t *testing.T) {
	tr := New("dns", Options{})
	e, _ := tr.Create("host")

	require.NoError(t, tr.Attach(e, []string{"10.0.0.1"}))
	require.Equal(t, []string{"10.0.0.1"}, e.Value())

	require.NoError(t, tr.Evict(e))
	require.True(t, errors.Is(tr.Attach(e, nil), ErrEntryDestroyed))
}

// TestTier_WalkOrder visits most recently used first.
func TestTier_WalkOrder(t *testing.T) {
	tr := New("memory", Options{})
	ready(t, tr, "a", 1)
	ready(t, tr, "b", 1)
	ready(t, tr, "c", 1)
	_, _ = tr.Lookup("a")

	var keys []string
	tr.Walk(func(e *model.Entry) bool {
		keys = append(keys, e.Key())
		return true
	})
	require.Equal(t, []string{"a", "c", "b"}, keys)
}

// TestTier_SetQuotaClampsNegative stores negative quotas as unlimited.
func TestTier_SetQuotaClampsNegative(t *testing.T) {
	tr := New("memory", Options{QuotaBytes: -1})
	require.Equal(t, int64(0), tr.QuotaBytes())

	tr.SetQuota(100, -3)
	require.Equal(t, int64(100), tr.QuotaBytes())
	require.Equal(t, int64(0), tr.QuotaEntries())
}

// TestTier_Claim locks created entries and leaves present ones alone.
func TestTier_Claim(t *testing.T) {
	tr := New("connections", Options{})

	e, created := tr.Claim("db:5432")
	require.True(t, created)
	require.Equal(t, model.Loading, e.State())
	require.Equal(t, int32(1), e.LockCount())
	require.Equal(t, int64(1), tr.LockedEntries())

	// a claimed entry survives a flush before its producer finishes
	tr.FlushAll()
	require.Equal(t, model.Loading, e.State())

	got, created := tr.Claim("db:5432")
	require.False(t, created)
	require.Same(t, e, got)
	require.Equal(t, int32(1), got.LockCount())

	m := tr.Metrics()
	require.Equal(t, int64(1), m.Hits)
	require.Equal(t, int64(1), m.Misses)
}

// TestTier_Peek neither counts a hit nor refreshes recency.
func TestTier_Peek(t *testing.T) {
	tr := New("memory", Options{QuotaBytes: 10})
	a := ready(t, tr, "A", 10)
	ready(t, tr, "B", 10)

	got, ok := tr.Peek("A")
	require.True(t, ok)
	require.Same(t, a, got)
	_, ok = tr.Peek("missing")
	require.False(t, ok)
	require.Equal(t, int64(0), tr.Metrics().Hits)

	tr.ShrinkToQuota()
	require.Equal(t, model.Destroyed, a.State())
}
