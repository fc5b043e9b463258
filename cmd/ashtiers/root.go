package main

import (
	"fmt"
	"github.com/Borislavv/go-ash-tiers/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"log/slog"
	"os"
	"strings"
)

const envPrefix = "ASHTIERS"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "ashtiers",
		Short: "Memory and connection cache tiers with quota accounting",
		Long: `ashtiers builds the cache tiers of one process and drives their accountant.

Settings come from the YAML file given by --config, then ASHTIERS_* environment
variables, then flags.

Examples:
  # Show usage of every tier
  ashtiers report --config ./ashtiers.yaml

  # Fill the memory tier past a 1MB quota and shrink it
  ashtiers simulate --memory-cache-size 1048576 --entries 500 --entry-size 4096

  # Serve Prometheus metrics
  ASHTIERS_METRICS_ADDR=:9100 ashtiers metrics`,
		SilenceUsage: true,
	}

	fs := root.PersistentFlags()
	fs.StringP("config", "c", "", "path to the YAML config")
	fs.Int64("memory-cache-size", 0, "byte quota of the memory and decompressed tiers, 0 keeps the config value")
	fs.Int64("max-format-cache-entries", 0, "entry quota of the formatted tier, 0 keeps the config value")
	fs.Bool("aggressive", false, "reclaim ahead of quotas down to the low-water mark")
	fs.BoolP("verbose", "v", false, "enable debug logs")
	bindFlags(v, fs)

	root.AddCommand(newReportCmd(v), newSimulateCmd(v), newMetricsCmd(v))
	return root
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

// loadConfig reads the YAML file, if any, and lays environment and flag values over it.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := &config.Config{}
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if size := v.GetInt64("memory-cache-size"); size > 0 {
		cfg.MemoryCacheSize = size
		if cfg.Tiers != nil && cfg.Tiers[config.TierMemory] != nil {
			cfg.Tiers[config.TierMemory].QuotaBytes = size
			cfg.Tiers[config.TierDecompressed].QuotaBytes = size
		}
	}
	if n := v.GetInt64("max-format-cache-entries"); n > 0 {
		cfg.MaxFormatCacheEntries = n
	}
	if v.GetBool("aggressive") {
		cfg.AggressiveCache = true
	}
	if addr := v.GetString("metrics-addr"); addr != "" {
		if cfg.Metrics == nil {
			cfg.Metrics = &config.MetricsCfg{}
		}
		cfg.Metrics.Addr = addr
	}
	cfg.AdjustConfig()

	return cfg, nil
}

func newLogger(v *viper.Viper) *slog.Logger {
	level := slog.LevelInfo
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h).With(slog.String("service", "ashTiers"))
}
