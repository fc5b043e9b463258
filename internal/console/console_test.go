package console

import (
	"context"
	"errors"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/diag"
	"github.com/Borislavv/go-ash-tiers/internal/help"
	"github.com/Borislavv/go-ash-tiers/internal/tier"
	"github.com/Borislavv/go-ash-tiers/internal/tier/model"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func newAccountant(t *testing.T) *accountant.Accountant {
	t.Helper()
	acc := accountant.New(help.Logger(), diag.NewNop())
	for _, name := range []string{config.TierMemory, config.TierDecompressed, config.TierFormatted} {
		require.True(t, acc.Register(name, tier.New(name, tier.Options{})))
	}
	require.True(t, acc.Register(config.TierDNS, tier.New(config.TierDNS, tier.Options{Background: true})))
	return acc
}

func put(t *testing.T, acc *accountant.Accountant, name, key string, size int) *model.Entry {
	t.Helper()
	tr, ok := acc.Tier(name)
	require.True(t, ok)
	e, err := tr.Create(key)
	require.NoError(t, err)
	require.NoError(t, tr.AppendBytes(e, make([]byte, size)))
	require.NoError(t, tr.Finalize(e))
	return e
}

// TestConsole_AnonymousMenu allows only inspection and flushing.
func TestConsole_AnonymousMenu(t *testing.T) {
	c := New(newAccountant(t), AnonymousMenu)

	require.True(t, c.Allowed(CacheInfo))
	require.True(t, c.Allowed(FlushAll))
	require.False(t, c.Allowed(SetMemoryCacheSize))
	require.False(t, c.Allowed(AbortConnections))

	_, err := c.SetMemoryCacheSize(t.Context(), 1<<20)
	require.ErrorIs(t, err, ErrCapabilityDenied)
	_, err = c.SetFormatCacheEntries(t.Context(), 10)
	require.ErrorIs(t, err, ErrCapabilityDenied)
	require.ErrorIs(t, c.SetAggressive(true), ErrCapabilityDenied)
	require.ErrorIs(t, c.AbortConnections(t.Context(), true), ErrCapabilityDenied)
}

// TestConsole_FullMenu allows every command.
func TestConsole_FullMenu(t *testing.T) {
	c := New(newAccountant(t), FullMenu)
	for cmd := range commandNames {
		require.True(t, c.Allowed(cmd), cmd.String())
	}
	require.False(t, c.Allowed(Command(99)))
	require.Equal(t, "unknown", Command(99).String())
}

// TestConsole_CacheInfo renders a line per tier plus the total.
func TestConsole_CacheInfo(t *testing.T) {
	acc := newAccountant(t)
	put(t, acc, config.TierMemory, "a", 2048)
	require.NoError(t, acc.SetQuota(config.TierFormatted, 0, 10))

	lines, err := New(acc, AnonymousMenu).CacheInfo()
	require.NoError(t, err)
	require.Len(t, lines, 5)
	require.True(t, strings.HasPrefix(lines[0], "memory: 2KB 0B in 1 files"), lines[0])
	require.Contains(t, lines[0], "quota INF")
	require.Contains(t, lines[2], "/ 10 files")
	require.True(t, strings.HasPrefix(lines[4], "total:"), lines[4])
}

// TestConsole_FlushAll keeps locked entries.
func TestConsole_FlushAll(t *testing.T) {
	acc := newAccountant(t)
	put(t, acc, config.TierMemory, "a", 10)
	pinned := put(t, acc, config.TierMemory, "b", 10)
	memory, _ := acc.Tier(config.TierMemory)
	require.NoError(t, memory.Lock(pinned))

	rep, err := New(acc, AnonymousMenu).FlushAll(t.Context())
	require.NoError(t, err)
	require.Equal(t, accountant.FreeAll, rep.Mode)
	require.Equal(t, int64(1), rep.Total().FreedEntries)
	require.True(t, rep.Partial())
	require.Equal(t, model.Ready, pinned.State())
}

// TestConsole_SetMemoryCacheSize shrinks the memory and decompressed tiers.
func TestConsole_SetMemoryCacheSize(t *testing.T) {
	acc := newAccountant(t)
	for _, key := range []string{"a", "b", "c"} {
		put(t, acc, config.TierMemory, key, 400)
		put(t, acc, config.TierDecompressed, key, 400)
	}

	rep, err := New(acc, FullMenu).SetMemoryCacheSize(t.Context(), 1000)
	require.NoError(t, err)
	require.Equal(t, accountant.CheckQuota, rep.Mode)
	require.Equal(t, int64(2), rep.Total().FreedEntries)

	for _, name := range []string{config.TierMemory, config.TierDecompressed} {
		s, ok := acc.Snapshot(name)
		require.True(t, ok)
		require.Equal(t, int64(1000), s.QuotaBytes)
		require.Equal(t, int64(800), s.Bytes)
	}
}

// TestConsole_SetFormatCacheEntries caps the formatted tier.
func TestConsole_SetFormatCacheEntries(t *testing.T) {
	acc := newAccountant(t)
	for _, key := range []string{"a", "b", "c", "d"} {
		put(t, acc, config.TierFormatted, key, 1)
	}

	_, err := New(acc, FullMenu).SetFormatCacheEntries(t.Context(), 2)
	require.NoError(t, err)
	s, _ := acc.Snapshot(config.TierFormatted)
	require.Equal(t, int64(2), s.Files)
	require.Equal(t, int64(2), s.QuotaEntries)
}

// TestConsole_SetAggressive switches every tier.
func TestConsole_SetAggressive(t *testing.T) {
	acc := newAccountant(t)
	require.NoError(t, New(acc, FullMenu).SetAggressive(true))
	for _, s := range acc.Snapshots() {
		require.True(t, s.Aggressive, s.Name)
	}
}

// TestConsole_AbortConnections aborts background loads only unless all is set.
func TestConsole_AbortConnections(t *testing.T) {
	acc := newAccountant(t)
	dns, _ := acc.Tier(config.TierDNS)
	memory, _ := acc.Tier(config.TierMemory)
	_, err := dns.Create("slow.example")
	require.NoError(t, err)
	_, err = memory.Create("http://a/")
	require.NoError(t, err)

	c := New(acc, FullMenu)
	require.NoError(t, c.AbortConnections(t.Context(), false))
	require.Equal(t, int64(0), dns.LoadingEntries())
	require.Equal(t, int64(1), memory.LoadingEntries())

	require.NoError(t, c.AbortConnections(t.Context(), true))
	require.Equal(t, int64(0), memory.LoadingEntries())
}

// TestConsole_AbortConnectionsHookError returns the failing hook.
func TestConsole_AbortConnectionsHookError(t *testing.T) {
	acc := newAccountant(t)
	boom := errors.New("resolver stuck")
	acc.OnAbort("resolver", func(context.Context) error { return boom })

	require.ErrorIs(t, New(acc, FullMenu).AbortConnections(t.Context(), false), boom)
}
