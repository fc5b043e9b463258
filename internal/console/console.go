// Package console is the command surface behind the resource and cache menus. What a session
// may do is fixed by its capability when the session starts.
package console

import (
	"context"
	"errors"
	"fmt"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/shared/bytes"
)

var ErrCapabilityDenied = errors.New("command not allowed for this session")

type Capability int

const (
	// AnonymousMenu may inspect and flush caches but not change settings or kill connections.
	AnonymousMenu Capability = iota
	FullMenu
)

type Command int

const (
	CacheInfo Command = iota
	FlushAll
	SetMemoryCacheSize
	SetFormatCacheEntries
	SetAggressive
	AbortConnections
)

var commandNames = map[Command]string{
	CacheInfo:             "cache_info",
	FlushAll:              "flush_all",
	SetMemoryCacheSize:    "set_memory_cache_size",
	SetFormatCacheEntries: "set_format_cache_entries",
	SetAggressive:         "set_aggressive",
	AbortConnections:      "abort_connections",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

type Console struct {
	acc        *accountant.Accountant
	capability Capability
}

func New(acc *accountant.Accountant, capability Capability) *Console {
	return &Console{acc: acc, capability: capability}
}

func (c *Console) Allowed(cmd Command) bool {
	switch cmd {
	case CacheInfo, FlushAll:
		return true
	case SetMemoryCacheSize, SetFormatCacheEntries, SetAggressive, AbortConnections:
		return c.capability == FullMenu
	default:
		return false
	}
}

// CacheInfo renders one line per tier and a total line.
func (c *Console) CacheInfo() ([]string, error) {
	if err := c.check(CacheInfo); err != nil {
		return nil, err
	}

	snaps := c.acc.Snapshots()
	lines := make([]string, 0, len(snaps)+1)
	for _, s := range append(snaps, c.acc.Total()) {
		line := fmt.Sprintf("%s: %s in %d files, %d locked, %d loading, quota %s",
			s.Name, bytes.FmtMem(uint64(max(s.Bytes, 0))), s.Files, s.Locked, s.Loading, bytes.FmtQuota(s.QuotaBytes))
		if s.QuotaEntries > 0 {
			line += fmt.Sprintf(" / %d files", s.QuotaEntries)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// FlushAll aborts background loads and evicts every unlocked entry.
func (c *Console) FlushAll(ctx context.Context) (accountant.Report, error) {
	if err := c.check(FlushAll); err != nil {
		return accountant.Report{}, err
	}
	return c.acc.Shrink(ctx, accountant.ShrinkRequest{Mode: accountant.FreeAll}), nil
}

// SetMemoryCacheSize sets the byte quota of the memory and decompressed tiers and shrinks to it.
func (c *Console) SetMemoryCacheSize(ctx context.Context, size int64) (accountant.Report, error) {
	if err := c.check(SetMemoryCacheSize); err != nil {
		return accountant.Report{}, err
	}
	for _, name := range []string{config.TierMemory, config.TierDecompressed} {
		if err := c.setQuotaBytes(name, size); err != nil {
			return accountant.Report{}, err
		}
	}
	return c.acc.Shrink(ctx, accountant.ShrinkRequest{Mode: accountant.CheckQuota}), nil
}

// SetFormatCacheEntries sets the entry quota of the formatted documents tier and shrinks to it.
func (c *Console) SetFormatCacheEntries(ctx context.Context, n int64) (accountant.Report, error) {
	if err := c.check(SetFormatCacheEntries); err != nil {
		return accountant.Report{}, err
	}
	t, ok := c.acc.Tier(config.TierFormatted)
	if !ok {
		return accountant.Report{}, fmt.Errorf("%s: %w", config.TierFormatted, accountant.ErrUnknownTier)
	}
	t.SetQuota(t.QuotaBytes(), n)
	return c.acc.Shrink(ctx, accountant.ShrinkRequest{Mode: accountant.CheckQuota}), nil
}

// SetAggressive switches every tier; it applies from the next shrink on.
func (c *Console) SetAggressive(on bool) error {
	if err := c.check(SetAggressive); err != nil {
		return err
	}
	c.acc.SetAggressive(on)
	return nil
}

// AbortConnections aborts background loads, or every load when all is set.
func (c *Console) AbortConnections(ctx context.Context, all bool) error {
	if err := c.check(AbortConnections); err != nil {
		return err
	}
	if all {
		return c.acc.AbortAll(ctx)
	}
	return c.acc.AbortBackground(ctx)
}

func (c *Console) check(cmd Command) error {
	if !c.Allowed(cmd) {
		return fmt.Errorf("%s: %w", cmd, ErrCapabilityDenied)
	}
	return nil
}

func (c *Console) setQuotaBytes(name string, size int64) error {
	t, ok := c.acc.Tier(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, accountant.ErrUnknownTier)
	}
	t.SetQuota(size, t.QuotaEntries())
	return nil
}
