package main

import (
	"fmt"
	"github.com/Borislavv/go-ash-tiers"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/Borislavv/go-ash-tiers/internal/accountant"
	"github.com/Borislavv/go-ash-tiers/internal/tier"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSimulateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Fill the memory tier and run one shrink pass",
		Long: `simulate inserts --entries entries of --entry-size bytes into the memory tier,
pins every --lock-every'th entry, runs one shrink in --mode (check_quota or free_all)
and prints the reclamation report followed by the tier usage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := parseMode(v.GetString("mode"))
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			tiers, err := ashtiers.New(cmd.Context(), cfg, newLogger(v))
			if err != nil {
				return err
			}
			defer tiers.Close()

			memory, _ := tiers.Tier(config.TierMemory)
			if err = fill(memory, v.GetInt("entries"), v.GetInt("entry-size"), v.GetInt("lock-every")); err != nil {
				return err
			}

			rep := tiers.Shrink(cmd.Context(), accountant.ShrinkRequest{Mode: mode})
			out := cmd.OutOrStdout()
			for _, r := range rep.Tiers {
				if r.FreedEntries == 0 && !r.Partial() {
					continue
				}
				_, _ = fmt.Fprintf(out, "%s: freed %d bytes in %d files, short by %d bytes / %d files\n",
					r.Name, r.FreedBytes, r.FreedEntries, r.ShortfallBytes, r.ShortfallEntries)
			}
			if rep.Partial() {
				_, _ = fmt.Fprintln(out, "partial reclamation: locked or loading entries kept")
			}
			return printInfo(cmd, tiers)
		},
	}

	fs := cmd.Flags()
	fs.Int("entries", 100, "number of entries to insert")
	fs.Int("entry-size", 4096, "payload size of one entry in bytes")
	fs.Int("lock-every", 0, "pin every n-th entry, 0 pins none")
	fs.String("mode", accountant.CheckQuota.String(), "shrink mode: check_quota or free_all")
	bindFlags(v, fs)

	return cmd
}

func parseMode(s string) (accountant.Mode, error) {
	switch s {
	case accountant.CheckQuota.String():
		return accountant.CheckQuota, nil
	case accountant.FreeAll.String():
		return accountant.FreeAll, nil
	default:
		return 0, fmt.Errorf("unknown shrink mode %q", s)
	}
}

func fill(t *tier.Tier, entries, size, lockEvery int) error {
	payload := make([]byte, size)
	for i := 0; i < entries; i++ {
		e, err := t.Create(fmt.Sprintf("sim-%d", i))
		if err != nil {
			return err
		}
		if err = t.AppendBytes(e, payload); err != nil {
			return err
		}
		if err = t.Finalize(e); err != nil {
			return err
		}
		if lockEvery > 0 && i%lockEvery == 0 {
			if err = t.Lock(e); err != nil {
				return err
			}
		}
	}
	return nil
}
