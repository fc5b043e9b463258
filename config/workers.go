package config

import "time"

type ReclaimerCfg struct {
	// CallsPerSec defines how many quota checks the reclaimer performs per second.
	// Increasing this value makes reclamation more responsive but increases CPU usage.
	CallsPerSec int `yaml:"calls_per_sec"`

	// SubmitTimeout bounds how long an explicit request waits for the reclaimer to pick it up.
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
}

func (cfg *ReclaimerCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *ReclaimerCfg) adjust() {
	if cfg.CallsPerSec <= 0 {
		cfg.CallsPerSec = 10
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = time.Second
	}
}

type LifetimeCfg struct {
	// Interval between expiry scans. Example: "1s".
	Interval time.Duration `yaml:"interval"`

	// DNSTTL is the lifetime of a resolved host when the resolver gives none. Example: "1h".
	DNSTTL time.Duration `yaml:"dns_ttl"`

	// SessionTTL is the lifetime of a TLS session ticket. Example: "24h".
	SessionTTL time.Duration `yaml:"tls_session_ttl"`

	// IdleConnTimeout is how long an unused keep-alive connection stays pooled. Example: "90s".
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

func (cfg *LifetimeCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *LifetimeCfg) adjust() {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.DNSTTL <= 0 {
		cfg.DNSTTL = time.Hour
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
}

type TelemetryCfg struct {
	// Interval between usage log lines. Example: "5s".
	Interval time.Duration `yaml:"interval"`
}

func (cfg *TelemetryCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *TelemetryCfg) adjust() {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
}

type MetricsCfg struct {
	// Namespace prefixes every metric name. Example: "ashtiers".
	Namespace string `yaml:"namespace"`

	// Addr is the listen address of the CLI metrics endpoint. Example: ":9090".
	Addr string `yaml:"addr"`
}

func (cfg *MetricsCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *MetricsCfg) adjust() {
	if cfg.Namespace == "" {
		cfg.Namespace = "ashtiers"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
}
