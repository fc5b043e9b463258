// Package reclaimer enforces tier quotas in the background: a paced provider checks usage and
// a consumer runs shrink passes, including requests pushed explicitly through Submit.
package reclaimer

import (
	"context"
	"errors"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/shared/rate"
	"log/slog"
	"sync"
	"time"
)

var ErrReclaimerNotResponded = errors.New("reclaimer not responded")

type Reclaimer interface {
	Submit(req accountant.ShrinkRequest, timeout time.Duration) error
	Metrics() (scans, hits, freedItems, freedBytes int64)
	Close() error
}

type ReclamationWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.ReclaimerCfg
	logger   *slog.Logger
	acc      *accountant.Accountant
	jitter   *rate.Jitter
	counters *reclaimerCounters
	invokeCh chan accountant.ShrinkRequest
}

func New(
	ctx context.Context,
	cfg *config.ReclaimerCfg,
	logger *slog.Logger,
	acc *accountant.Accountant,
) Reclaimer {
	if !cfg.Enabled() {
		return &NoOpReclaimer{}
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&ReclamationWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		acc:      acc,
		jitter:   rate.NewJitter(ctx, cfg.CallsPerSec),
		counters: newReclaimerCounters(),
		invokeCh: make(chan accountant.ShrinkRequest),
	}).run()
}

// Submit hands req to the consumer. It does not wait for the pass to finish.
func (w *ReclamationWorker) Submit(req accountant.ShrinkRequest, timeout time.Duration) error {
	after := time.NewTimer(timeout)
	defer after.Stop()

	select {
	case <-w.ctx.Done():
		return w.ctx.Err()
	case w.invokeCh <- req:
	case <-after.C:
		return ErrReclaimerNotResponded
	}
	return nil
}

func (w *ReclamationWorker) Metrics() (scans, hits, freedItems, freedBytes int64) {
	return w.counters.snapshot()
}

func (w *ReclamationWorker) Close() error {
	w.cancel()
	return nil
}

func (w *ReclamationWorker) run() *ReclamationWorker {
	w.logger.Info("reclaimer is running", "calls_per_sec", w.cfg.CallsPerSec)

	go func() {
		defer w.logger.Info("reclaimer is stopped")
		var wg sync.WaitGroup
		wg.Go(w.consumer)
		wg.Go(w.provider)
		wg.Wait()
	}()

	return w
}

// provider - signals the consumer when any tier is above its target.
func (w *ReclamationWorker) provider() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case _, ok := <-w.jitter.Chan():
			if !ok {
				return
			}
			w.counters.scans.Add(1)
			if !w.acc.NeedsReclaim() {
				continue
			}
			select {
			case <-w.ctx.Done():
				return
			case w.invokeCh <- accountant.ShrinkRequest{Mode: accountant.CheckQuota}:
				w.counters.scanHits.Add(1)
			}
		}
	}
}

// consumer - runs shrink passes one at a time.
func (w *ReclamationWorker) consumer() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.invokeCh:
			rep := w.acc.Shrink(w.ctx, req)
			total := rep.Total()
			if total.FreedEntries > 0 || total.FreedBytes > 0 {
				w.counters.freedItems.Add(total.FreedEntries)
				w.counters.freedBytes.Add(total.FreedBytes)
			}
		}
	}
}
