package config

import "fmt"

// RuntimeConfig holds the hot-updatable settings. Instances are immutable;
// updates publish a new instance through an atomic pointer owned by the app.
type RuntimeConfig struct {
	// LocalDistanceThresholdMiles separates "local" from "not local" service
	// areas when classifying a delivery location.
	LocalDistanceThresholdMiles float64 `json:"local_distance_threshold_miles"`

	// CatalogSyncInterval is the periodic full-sync interval.
	CatalogSyncInterval Duration `json:"catalog_sync_interval"`

	// LatencySortedSetCap bounds each per-service latency sorted set.
	LatencySortedSetCap int `json:"latency_sorted_set_cap"`

	// MetricsMinSamples is the sample count below which percentile readbacks
	// are flagged as stale.
	MetricsMinSamples int `json:"metrics_min_samples"`
}

// NewRuntimeConfig derives the initial runtime config from the environment
// config.
func NewRuntimeConfig(env *EnvConfig) *RuntimeConfig {
	return &RuntimeConfig{
		LocalDistanceThresholdMiles: env.LocalDistanceThresholdMiles,
		CatalogSyncInterval:         Duration(env.CatalogSyncInterval),
		LatencySortedSetCap:         env.LatencySortedSetCap,
		MetricsMinSamples:           env.MetricsMinSamples,
	}
}

// Validate checks a runtime config for internal consistency. Used on admin
// patches before publishing.
func (rc *RuntimeConfig) Validate() error {
	if rc.LocalDistanceThresholdMiles <= 0 {
		return fmt.Errorf("local_distance_threshold_miles must be positive")
	}
	if rc.CatalogSyncInterval.Std() <= 0 {
		return fmt.Errorf("catalog_sync_interval must be positive")
	}
	if rc.LatencySortedSetCap <= 0 {
		return fmt.Errorf("latency_sorted_set_cap must be positive")
	}
	if rc.MetricsMinSamples <= 0 {
		return fmt.Errorf("metrics_min_samples must be positive")
	}
	return nil
}

// Clone returns a copy suitable for patch-then-publish.
func (rc *RuntimeConfig) Clone() *RuntimeConfig {
	cp := *rc
	return &cp
}
