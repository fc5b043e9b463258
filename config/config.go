package config

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
)

// Tier names known to the module. Tiers missing from the YAML are created with defaults.
const (
	TierMemory       = "memory"
	TierDecompressed = "decompressed"
	TierFormatted    = "formatted"
	TierDNS          = "dns"
	TierTLSSessions  = "tls_sessions"
	TierConnections  = "connections"
)

const defaultLowWaterCoefficient = 0.75

// Config groups configuration of all tiers and their workers.
// Each worker section can be disabled by setting it to nil.
type Config struct {
	// MemoryCacheSize is the byte quota of the raw and decompressed memory tiers. Zero means no ceiling.
	MemoryCacheSize int64 `yaml:"memory_cache_size"`

	// MaxFormatCacheEntries is the entry quota of the formatted documents tier. Zero means no ceiling.
	MaxFormatCacheEntries int64 `yaml:"max_format_cache_entries"`

	// AggressiveCache makes every tier reclaim ahead of its quota, down to the low-water mark.
	AggressiveCache bool `yaml:"aggressive_cache"`

	// LowWaterCoefficient is the fraction of a quota kept after an aggressive pass.
	// Tiers may override it. Example: 0.75.
	LowWaterCoefficient float64 `yaml:"low_water_coefficient"`

	// CacheTimeEnabled switches entries to a cached clock refreshed every 10ms.
	CacheTimeEnabled bool `yaml:"cache_time_enabled"`

	// Tiers holds per-tier overrides keyed by tier name.
	Tiers map[string]*TierCfg `yaml:"tiers"`

	// Reclaimer configures the background quota enforcement.
	// If nil, reclamation runs only on explicit shrink calls.
	Reclaimer *ReclaimerCfg `yaml:"reclaimer"`

	// Lifetime configures expiry of DNS records, TLS sessions and idle connections.
	// If nil, entries never expire on their own.
	Lifetime *LifetimeCfg `yaml:"lifetime"`

	// Telemetry configures periodic usage logs. If nil, nothing is logged.
	Telemetry *TelemetryCfg `yaml:"telemetry"`

	// Metrics configures the Prometheus collector. If nil, no collector is built.
	Metrics *MetricsCfg `yaml:"metrics"`
}

// TierNames lists the known tiers in registration order.
func TierNames() []string {
	return []string{TierMemory, TierDecompressed, TierFormatted, TierDNS, TierTLSSessions, TierConnections}
}

func (cfg *Config) AdjustConfig() {
	if cfg.LowWaterCoefficient <= 0 || cfg.LowWaterCoefficient > 1 {
		cfg.LowWaterCoefficient = defaultLowWaterCoefficient
	}
	if cfg.Tiers == nil {
		cfg.Tiers = make(map[string]*TierCfg, len(TierNames()))
	}
	for _, name := range TierNames() {
		if cfg.Tiers[name] == nil {
			cfg.Tiers[name] = &TierCfg{}
		}
	}

	// top-level settings win over tier sections
	if cfg.MemoryCacheSize > 0 {
		cfg.Tiers[TierMemory].QuotaBytes = cfg.MemoryCacheSize
		if cfg.Tiers[TierDecompressed].QuotaBytes <= 0 {
			cfg.Tiers[TierDecompressed].QuotaBytes = cfg.MemoryCacheSize
		}
	}
	if cfg.MaxFormatCacheEntries > 0 {
		cfg.Tiers[TierFormatted].QuotaEntries = cfg.MaxFormatCacheEntries
	}
	cfg.Tiers[TierDNS].Background = true
	cfg.Tiers[TierTLSSessions].Background = true
	cfg.Tiers[TierConnections].Background = true

	for _, t := range cfg.Tiers {
		t.QuotaBytes = max(t.QuotaBytes, 0)
		t.QuotaEntries = max(t.QuotaEntries, 0)
		if t.LowWaterCoefficient <= 0 || t.LowWaterCoefficient > 1 {
			t.LowWaterCoefficient = cfg.LowWaterCoefficient
		}
	}

	if cfg.Reclaimer.Enabled() {
		cfg.Reclaimer.adjust()
	}
	if cfg.Lifetime.Enabled() {
		cfg.Lifetime.adjust()
	}
	if cfg.Telemetry.Enabled() {
		cfg.Telemetry.adjust()
	}
	if cfg.Metrics.Enabled() {
		cfg.Metrics.adjust()
	}
}

func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.AdjustConfig()

	return cfg, nil
}
