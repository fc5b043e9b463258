package ashtiers

import (
	"context"
	"errors"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/console"
	"github.com/Borislavv/go-ash-tiers/internal/diag"
	"github.com/Borislavv/go-ash-tiers/internal/lifetimer"
	"github.com/Borislavv/go-ash-tiers/internal/reclaimer"
	"github.com/Borislavv/go-ash-tiers/internal/shared/cachedtime"
	"github.com/Borislavv/go-ash-tiers/internal/telemetry"
	"github.com/Borislavv/go-ash-tiers/internal/tier"
	"github.com/Borislavv/go-ash-tiers/internal/tiers/connpool"
	"github.com/Borislavv/go-ash-tiers/internal/tiers/decompressed"
	"github.com/Borislavv/go-ash-tiers/internal/tiers/dnscache"
	"github.com/Borislavv/go-ash-tiers/internal/tiers/sessioncache"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

var ErrNilConfig = errors.New("ashtiers: nil config")

type AshTiers interface {
	Tier(name string) (*tier.Tier, bool)
	Snapshots() []accountant.Snapshot
	Shrink(ctx context.Context, req accountant.ShrinkRequest) accountant.Report
	AbortBackground(ctx context.Context) error
	AbortAll(ctx context.Context) error
	Console(capability console.Capability) *console.Console
	io.Closer
}

// Option overrides the network edges of the producer tiers.
type Option func(*options)

type options struct {
	resolver dnscache.Resolver
	dial     connpool.Dialer
	diag     io.Writer
}

func WithResolver(r dnscache.Resolver) Option { return func(o *options) { o.resolver = r } }
func WithDialer(d connpool.Dialer) Option     { return func(o *options) { o.dial = d } }

// WithDiagnostics redirects invariant violation reports, stderr by default.
func WithDiagnostics(w io.Writer) Option { return func(o *options) { o.diag = w } }

type Tiers struct {
	*accountant.Accountant

	DNS          *dnscache.Cache
	Sessions     *sessioncache.Cache
	Pool         *connpool.Pool
	Decompressed *decompressed.Cache

	Reclaimer reclaimer.Reclaimer
	Lifetimer lifetimer.Lifetimer
	Telemetry *telemetry.Logs
	// Collector is nil when metrics are disabled. Registering it is up to the caller.
	Collector *telemetry.Collector
	Diag      *diag.Reporter

	cls    context.CancelFunc
	closed atomic.Bool
}

var _ AshTiers = (*Tiers)(nil)

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Tiers, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	cfg.AdjustConfig()

	o := &options{resolver: net.DefaultResolver, dial: (&net.Dialer{}).DialContext}
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(ctx)
	cachedtime.RunIfEnabled(ctx, cfg.CacheTimeEnabled)

	reporter := diag.New(o.diag)
	acc := accountant.New(logger, reporter)
	for _, name := range config.TierNames() {
		tc := cfg.Tiers[name]
		topts := tier.Options{
			QuotaBytes:          tc.QuotaBytes,
			QuotaEntries:        tc.QuotaEntries,
			Aggressive:          cfg.AggressiveCache,
			LowWaterCoefficient: tc.LowWaterCoefficient,
			Background:          tc.Background,
			Reporter:            reporter,
		}
		if name == config.TierConnections {
			topts.OnEvict = connpool.CloseOnEvict
		}
		acc.Register(name, tier.New(name, topts))
	}

	dnsTTL, sessionTTL, idleTimeout := ttls(cfg.Lifetime)
	memory, _ := acc.Tier(config.TierMemory)
	decoded, _ := acc.Tier(config.TierDecompressed)
	dns, _ := acc.Tier(config.TierDNS)
	sessions, _ := acc.Tier(config.TierTLSSessions)
	conns, _ := acc.Tier(config.TierConnections)

	t := &Tiers{
		Accountant:   acc,
		DNS:          dnscache.New(dns, acc, o.resolver, dnsTTL),
		Sessions:     sessioncache.New(sessions, sessionTTL),
		Pool:         connpool.New(conns, acc, o.dial, idleTimeout),
		Decompressed: decompressed.New(memory, decoded, decoded.QuotaBytes()),
		Diag:         reporter,
		cls:          cancel,
	}
	t.Reclaimer = reclaimer.New(ctx, cfg.Reclaimer, logger, acc)
	t.Lifetimer = lifetimer.New(ctx, cfg.Lifetime, logger, acc)
	t.Telemetry = telemetry.New(ctx, cfg.Telemetry, logger, acc, t.Reclaimer, t.Lifetimer)
	if cfg.Metrics.Enabled() {
		t.Collector = telemetry.NewCollector(cfg.Metrics.Namespace, acc)
	}

	logger.Info("tiers are ready", "tiers", acc.Names())
	return t, nil
}

// Console opens a command session with a fixed capability.
func (t *Tiers) Console(capability console.Capability) *console.Console {
	return console.New(t.Accountant, capability)
}

// Close stops the workers and tears the accountant down. Connections still in use stay open
// until their holders release them.
func (t *Tiers) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.cls()
	t.Accountant.Teardown(context.Background())
	return nil
}

func ttls(cfg *config.LifetimeCfg) (dns, session, idle time.Duration) {
	if !cfg.Enabled() {
		return 0, 0, 0
	}
	return cfg.DNSTTL, cfg.SessionTTL, cfg.IdleConnTimeout
}
