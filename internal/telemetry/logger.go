// Package telemetry reports tier usage: periodic delta logs and a Prometheus collector.
package telemetry

import (
	"context"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/lifetimer"
	"github.com/Borislavv/go-ash-tiers/internal/reclaimer"
	"github.com/Borislavv/go-ash-tiers/internal/shared/bytes"
	"log/slog"
	"time"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

type Logs struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       *config.TelemetryCfg
	logger    *slog.Logger
	acc       *accountant.Accountant
	reclaimer reclaimer.Reclaimer
	lifetimer lifetimer.Lifetimer
}

func New(
	ctx context.Context,
	cfg *config.TelemetryCfg,
	logger *slog.Logger,
	acc *accountant.Accountant,
	reclaimer reclaimer.Reclaimer,
	lifetimer lifetimer.Lifetimer,
) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	return (&Logs{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		logger:    logger,
		acc:       acc,
		reclaimer: reclaimer,
		lifetimer: lifetimer,
	}).run()
}

func (l *Logs) Interval() time.Duration {
	if !l.cfg.Enabled() {
		return 0
	}
	return l.cfg.Interval
}

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) run() *Logs {
	if l.cfg.Enabled() {
		go l.loop()
	}
	return l
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	s := newSampler(l.acc, l.reclaimer, l.lifetimer)
	prev := s.snapshot()

	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			cur := s.snapshot()
			d := deltaSnapshot(prev, cur)
			prev = cur
			l.log(d)
		}
	}
}

func (l *Logs) log(d snapshot) {
	common := []any{"interval", l.cfg.Interval.String()}

	if d.reclaimScans > 0 {
		l.logger.Info("reclaimer",
			append(common,
				"scans", int64(d.reclaimScans),
				"hits", int64(d.reclaimHits),
				"freed_items", int64(d.reclaimFreedItems),
				"freed_bytes", bytes.FmtMem(d.reclaimFreedBytes),
			)...,
		)
	}

	if d.lifetimeScans > 0 {
		l.logger.Info("lifetimer",
			append(common,
				"scans", int64(d.lifetimeScans),
				"hits", int64(d.lifetimeHits),
				"expired_items", int64(d.lifetimeExpiredItems),
				"expired_bytes", bytes.FmtMem(d.lifetimeExpiredBytes),
			)...,
		)
	}

	if d.partial > 0 {
		l.logger.Warn("partial reclamations",
			append(common,
				"shrink_calls", int64(d.shrinkCalls),
				"partial", int64(d.partial),
			)...,
		)
	}

	for _, snap := range l.acc.Snapshots() {
		td := d.tiers[snap.Name]
		l.logger.Info("tier",
			append(common,
				"name", snap.Name,
				"size", bytes.FmtMem(uint64(max(snap.Bytes, 0))),
				"entries", snap.Files,
				"locked", snap.Locked,
				"loading", snap.Loading,
				"quota_bytes", bytes.FmtQuota(snap.QuotaBytes),
				"quota_entries", snap.QuotaEntries,
				"aggressive", snap.Aggressive,
				"evicted_items", int64(td.evictedItems),
				"evicted_bytes", bytes.FmtMem(td.evictedBytes),
				"aborted", int64(td.aborted),
			)...,
		)
		if td.underflows > 0 {
			l.logger.Error("unlock underflows", "tier", snap.Name, "count", int64(td.underflows))
		}
	}
}
