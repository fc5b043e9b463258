package config

type TierCfg struct {
	// QuotaBytes caps the accounted bytes of the tier. Zero means no ceiling.
	QuotaBytes int64 `yaml:"quota_bytes"`

	// QuotaEntries caps the number of entries. Zero means no ceiling.
	QuotaEntries int64 `yaml:"quota_entries"`

	// LowWaterCoefficient overrides Config.LowWaterCoefficient for this tier.
	LowWaterCoefficient float64 `yaml:"low_water_coefficient"`

	// Background marks tiers whose loads are aborted by "abort background connections".
	// It is forced for dns, tls_sessions and connections.
	Background bool `yaml:"background"`
}
