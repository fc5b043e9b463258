// Package accountant owns the registered tiers of one process: it answers usage queries,
// runs shrink requests across tiers and aborts in-flight background work.
package accountant

import (
	"context"
	"fmt"
	"github.com/Borislavv/go-ash-tiers/internal/diag"
	"github.com/Borislavv/go-ash-tiers/internal/tier"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// AbortHook stops the external operations (resolvers, handshakes, dials) feeding Loading entries.
type AbortHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   AbortHook
}

type Accountant struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	reporter *diag.Reporter
	tiers    map[string]*tier.Tier
	order    []string
	hooks    []namedHook
	torn     atomic.Bool

	bgMu     sync.Mutex
	bgCtx    context.Context
	bgCancel context.CancelCauseFunc

	counters *accountantCounters
}

func New(logger *slog.Logger, reporter *diag.Reporter) *Accountant {
	if reporter == nil {
		reporter = diag.NewNop()
	}
	a := &Accountant{
		logger:   logger,
		reporter: reporter,
		tiers:    make(map[string]*tier.Tier),
		counters: newAccountantCounters(),
	}
	a.bgCtx, a.bgCancel = context.WithCancelCause(context.Background())
	return a
}

// Register adds t under name. It returns false for duplicate names and once Teardown started.
func (a *Accountant) Register(name string, t *tier.Tier) bool {
	if a.torn.Load() {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.torn.Load() {
		return false
	}
	if _, ok := a.tiers[name]; ok {
		return false
	}
	a.tiers[name] = t
	a.order = append(a.order, name)
	return true
}

func (a *Accountant) Tier(name string) (*tier.Tier, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.tiers[name]
	return t, ok
}

// Names returns tier names in registration order.
func (a *Accountant) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.order)
}

func (a *Accountant) Snapshot(name string) (Snapshot, bool) {
	t, ok := a.Tier(name)
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(name, t), true
}

func (a *Accountant) Snapshots() []Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Snapshot, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, snapshotOf(name, a.tiers[name]))
	}
	return out
}

// Total sums usage across tiers. Quotas are summed too; an unlimited tier makes the sum unlimited.
func (a *Accountant) Total() Snapshot {
	total := Snapshot{Name: "total"}
	unlimitedBytes, unlimitedEntries := false, false
	for _, s := range a.Snapshots() {
		total.Bytes += s.Bytes
		total.Files += s.Files
		total.Locked += s.Locked
		total.Loading += s.Loading
		total.QuotaBytes += s.QuotaBytes
		total.QuotaEntries += s.QuotaEntries
		unlimitedBytes = unlimitedBytes || s.QuotaBytes == 0
		unlimitedEntries = unlimitedEntries || s.QuotaEntries == 0
	}
	if unlimitedBytes {
		total.QuotaBytes = 0
	}
	if unlimitedEntries {
		total.QuotaEntries = 0
	}
	return total
}

// SetQuota updates a tier quota; it takes effect on the next shrink.
func (a *Accountant) SetQuota(name string, bytes, entries int64) error {
	t, ok := a.Tier(name)
	if !ok {
		return fmt.Errorf("set quota %s: %w", name, ErrUnknownTier)
	}
	t.SetQuota(bytes, entries)
	return nil
}

// SetAggressive switches every tier; it takes effect on the next shrink.
func (a *Accountant) SetAggressive(on bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, t := range a.tiers {
		t.SetAggressive(on)
	}
}

// OnAbort registers a hook run by AbortBackground and AbortAll.
func (a *Accountant) OnAbort(name string, fn AbortHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, namedHook{name: name, fn: fn})
}

// BackgroundContext is cancelled with ErrAborted by the next abort call.
func (a *Accountant) BackgroundContext() context.Context {
	a.bgMu.Lock()
	defer a.bgMu.Unlock()
	return a.bgCtx
}

// Bind derives a producer context that ends with ctx or with the next abort, whichever comes first.
func (a *Accountant) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(a.BackgroundContext(), func() { cancel(ErrAborted) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// AbortBackground aborts network, DNS and TLS work: hooks run concurrently, then Loading
// entries of background tiers are destroyed. Hook failures are reported and returned.
func (a *Accountant) AbortBackground(ctx context.Context) error {
	return a.abort(ctx, true)
}

// AbortAll is AbortBackground for every tier.
func (a *Accountant) AbortAll(ctx context.Context) error {
	return a.abort(ctx, false)
}

// Shrink runs one reclamation pass. Partial progress is reported, never returned as an error.
func (a *Accountant) Shrink(ctx context.Context, req ShrinkRequest) Report {
	a.counters.shrinkCalls.Add(1)
	rep := Report{Mode: req.Mode}

	if req.Mode == FreeAll {
		before := a.counters.aborted.Load()
		if err := a.AbortBackground(ctx); err != nil {
			a.logger.Warn("abort before flush failed", "err", err)
		}
		rep.Aborted = a.counters.aborted.Load() - before
	}

	rep.Tiers = a.reclaim(req)
	return rep
}

// NeedsReclaim reports whether any tier is above its reclamation target.
func (a *Accountant) NeedsReclaim() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, t := range a.tiers {
		if t.NeedsReclaim() {
			return true
		}
	}
	return false
}

// Expire evicts unlocked entries whose expiry passed at now (unix nano) in every tier.
func (a *Accountant) Expire(now int64) Report {
	rep := Report{Mode: CheckQuota}
	for _, name := range a.Names() {
		t, ok := a.Tier(name)
		if !ok {
			continue
		}
		r := t.ExpireStale(now)
		if r.FreedEntries > 0 {
			a.counters.expired.Add(r.FreedEntries)
		}
		rep.Tiers = append(rep.Tiers, TierReport{Name: name, Reclamation: r})
	}
	return rep
}

// Teardown stops registration, aborts all work and flushes every tier. Entries still locked
// by their users survive and are reported as the shortfall.
func (a *Accountant) Teardown(ctx context.Context) Report {
	a.mu.Lock()
	a.torn.Store(true)
	a.mu.Unlock()

	before := a.counters.aborted.Load()
	if err := a.AbortAll(ctx); err != nil {
		a.logger.Warn("abort on teardown failed", "err", err)
	}
	a.counters.shrinkCalls.Add(1)
	rep := Report{Mode: FreeAll, Aborted: a.counters.aborted.Load() - before}
	rep.Tiers = a.reclaim(ShrinkRequest{Mode: FreeAll})
	a.logger.Info("accountant is stopped",
		"freed_entries", rep.Total().FreedEntries,
		"left_entries", rep.Total().ShortfallEntries,
	)
	return rep
}

func (a *Accountant) Metrics() Metrics { return a.counters.snapshot() }

/**
 * Private API.
 */

func (a *Accountant) abort(ctx context.Context, backgroundOnly bool) error {
	a.rotateBackground()

	a.mu.RLock()
	hooks := slices.Clone(a.hooks)
	a.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hooks {
		g.Go(func() error {
			from := time.Now()
			if err := h.fn(gctx); err != nil {
				a.reporter.Hook(h.name, time.Since(from), err)
				return fmt.Errorf("abort hook %s: %w", h.name, err)
			}
			return nil
		})
	}
	hookErr := g.Wait()

	var aborted int64
	for _, name := range a.Names() {
		t, ok := a.Tier(name)
		if !ok || (backgroundOnly && !t.Background()) {
			continue
		}
		aborted += t.AbortLoading()
	}
	a.counters.aborted.Add(aborted)

	if aborted > 0 {
		a.logger.Info("aborted loading entries", "count", aborted, "background_only", backgroundOnly)
	}
	return hookErr
}

// rotateBackground cancels the current background context and installs a fresh one
// for producers started after the abort.
func (a *Accountant) rotateBackground() {
	a.bgMu.Lock()
	defer a.bgMu.Unlock()
	a.bgCancel(ErrAborted)
	a.bgCtx, a.bgCancel = context.WithCancelCause(context.Background())
}

func (a *Accountant) reclaim(req ShrinkRequest) []TierReport {
	var out []TierReport
	for _, name := range a.selected(req.Tiers) {
		t, ok := a.Tier(name)
		if !ok {
			continue
		}

		var r tier.Reclamation
		switch req.Mode {
		case FreeAll:
			r = t.FlushAll()
		default:
			r = t.ShrinkToQuota()
		}
		out = append(out, TierReport{Name: name, Reclamation: r})

		a.counters.freedBytes.Add(r.FreedBytes)
		a.counters.freedEntries.Add(r.FreedEntries)
		if r.Partial() {
			a.counters.partial.Add(1)
			a.logger.Debug("partial reclamation", "tier", name, "mode", req.Mode.String(),
				"shortfall_bytes", r.ShortfallBytes, "shortfall_entries", r.ShortfallEntries)
		}
	}
	return out
}

func (a *Accountant) selected(names []string) []string {
	if len(names) == 0 {
		return a.Names()
	}
	return names
}

func snapshotOf(name string, t *tier.Tier) Snapshot {
	return Snapshot{
		Name:         name,
		Bytes:        t.TotalBytes(),
		Files:        t.TotalEntries(),
		Locked:       t.LockedEntries(),
		Loading:      t.LoadingEntries(),
		QuotaBytes:   t.QuotaBytes(),
		QuotaEntries: t.QuotaEntries(),
		Aggressive:   t.Aggressive(),
	}
}
