package reclaimer

import (
	"context"
	"fmt"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/diag"
	"github.com/Borislavv/go-ash-tiers/internal/help"
	"github.com/Borislavv/go-ash-tiers/internal/tier"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func fill(t *testing.T, tr *tier.Tier, n, size int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e, err := tr.Create(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		require.NoError(t, tr.AppendBytes(e, make([]byte, size)))
		require.NoError(t, tr.Finalize(e))
	}
}

// TestReclaimer_EnforcesQuota shrinks an over-quota tier in the background.
func TestReclaimer_EnforcesQuota(t *testing.T) {
	acc := accountant.New(help.Logger(), diag.NewNop())
	memory := tier.New(config.TierMemory, tier.Options{QuotaBytes: 8 * 1024})
	require.True(t, acc.Register(config.TierMemory, memory))

	// attempt to load 100kb into an 8kb tier
	fill(t, memory, 100, 1024)
	require.Equal(t, int64(100*1024), memory.TotalBytes())

	r := New(t.Context(), &config.ReclaimerCfg{CallsPerSec: 100}, help.Logger(), acc)
	defer func() { _ = r.Close() }()

	require.Eventually(t, func() bool {
		return memory.TotalBytes() <= 8*1024
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		scans, hits, items, bytes := r.Metrics()
		return scans > 0 && hits > 0 && items == 92 && bytes == 92*1024
	}, 5*time.Second, 10*time.Millisecond)
}

// TestReclaimer_AggressiveLowWater reclaims down to the low-water mark.
func TestReclaimer_AggressiveLowWater(t *testing.T) {
	acc := accountant.New(help.Logger(), diag.NewNop())
	memory := tier.New(config.TierMemory, tier.Options{QuotaBytes: 10 * 1024, LowWaterCoefficient: 0.5})
	require.True(t, acc.Register(config.TierMemory, memory))
	fill(t, memory, 8, 1024)

	r := New(t.Context(), &config.ReclaimerCfg{CallsPerSec: 100}, help.Logger(), acc)
	defer func() { _ = r.Close() }()

	// within quota: nothing to do
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(8*1024), memory.TotalBytes())

	acc.SetAggressive(true)
	require.Eventually(t, func() bool {
		return memory.TotalBytes() == 5*1024
	}, 5*time.Second, 10*time.Millisecond)
}

// TestReclaimer_SubmitFreeAll runs an explicit full flush.
func TestReclaimer_SubmitFreeAll(t *testing.T) {
	acc := accountant.New(help.Logger(), diag.NewNop())
	formatted := tier.New(config.TierFormatted, tier.Options{})
	require.True(t, acc.Register(config.TierFormatted, formatted))
	fill(t, formatted, 10, 1)

	r := New(t.Context(), &config.ReclaimerCfg{CallsPerSec: 1}, help.Logger(), acc)
	defer func() { _ = r.Close() }()

	require.NoError(t, r.Submit(accountant.ShrinkRequest{Mode: accountant.FreeAll}, time.Second))
	require.Eventually(t, func() bool {
		return formatted.TotalEntries() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

// TestReclaimer_SubmitTimeout fails when nobody picks the request up.
func TestReclaimer_SubmitTimeout(t *testing.T) {
	w := &ReclamationWorker{
		ctx:      t.Context(),
		invokeCh: make(chan accountant.ShrinkRequest),
	}

	err := w.Submit(accountant.ShrinkRequest{}, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrReclaimerNotResponded)
}

// TestReclaimer_SubmitAfterClose returns the context error.
func TestReclaimer_SubmitAfterClose(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	w := &ReclamationWorker{
		ctx:      ctx,
		invokeCh: make(chan accountant.ShrinkRequest),
	}

	err := w.Submit(accountant.ShrinkRequest{}, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

// TestReclaimer_Disabled returns the no-op implementation.
func TestReclaimer_Disabled(t *testing.T) {
	r := New(t.Context(), nil, help.Logger(), nil)
	require.IsType(t, &NoOpReclaimer{}, r)
}
