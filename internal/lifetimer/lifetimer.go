// Package lifetimer expires DNS records, TLS sessions and idle connections whose lifetime passed.
package lifetimer

import (
	"context"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/shared/cachedtime"
	"log/slog"
	"sync"
	"time"
)

type Lifetimer interface {
	Metrics() (scans, hits, expiredItems, expiredBytes int64)
	Close() error
}

type LifetimeWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.LifetimeCfg
	logger   *slog.Logger
	acc      *accountant.Accountant
	counters *lifetimerCounters
	invokeCh chan time.Time
}

func New(
	ctx context.Context,
	cfg *config.LifetimeCfg,
	logger *slog.Logger,
	acc *accountant.Accountant,
) Lifetimer {
	if !cfg.Enabled() {
		return &NoOpLifetimer{}
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&LifetimeWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		acc:      acc,
		counters: newLifetimerCounters(),
		invokeCh: make(chan time.Time, 1),
	}).run()
}

func (w *LifetimeWorker) Metrics() (scans, hits, expiredItems, expiredBytes int64) {
	return w.counters.snapshot()
}

func (w *LifetimeWorker) Close() error {
	w.cancel()
	return nil
}

func (w *LifetimeWorker) run() *LifetimeWorker {
	w.logger.Info("lifetimer is running", "interval", w.cfg.Interval.String())

	go func() {
		defer w.logger.Info("lifetimer is stopped")
		var wg sync.WaitGroup
		wg.Go(w.consumer)
		wg.Go(w.provider)
		wg.Wait()
	}()

	return w
}

// provider - schedules an expiry pass per tick; a pass still pending absorbs the tick.
func (w *LifetimeWorker) provider() {
	tick := time.NewTicker(w.cfg.Interval)
	defer tick.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-tick.C:
			w.counters.scans.Add(1)
			select {
			case w.invokeCh <- cachedtime.Now():
			default:
			}
		}
	}
}

func (w *LifetimeWorker) consumer() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case now := <-w.invokeCh:
			total := w.acc.Expire(now.UnixNano()).Total()
			if total.FreedEntries > 0 {
				w.counters.scanHits.Add(1)
				w.counters.expiredItems.Add(total.FreedEntries)
				w.counters.expiredBytes.Add(total.FreedBytes)
			}
		}
	}
}
