package telemetry

import (
	"time"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// Config holds telemetry module settings.
type Config struct {
	// SnapshotCap bounds the in-memory list of recent payload batches.
	// The oldest batch is evicted past the cap.
	SnapshotCap int

	// APIKey gates collector ingestion. Empty disables the check (the
	// usual setup when collectors live on a trusted network).
	APIKey string

	// Retention is how long raw history rows are kept in the database.
	Retention time.Duration

	// MaintenanceInterval is how often expired history is pruned.
	MaintenanceInterval time.Duration

	// ProbeTimeout and ProbeCount configure on-demand reachability pings.
	ProbeTimeout time.Duration
	ProbeCount   int
}

// DefaultConfig returns the default telemetry settings.
func DefaultConfig() Config {
	return Config{
		SnapshotCap:         32,
		Retention:           30 * 24 * time.Hour,
		MaintenanceInterval: time.Hour,
		ProbeTimeout:        3 * time.Second,
		ProbeCount:          3,
	}
}

// configFrom overlays module config values onto the defaults.
func configFrom(c plugin.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	if c.IsSet("snapshot_cap") {
		if v := c.GetInt("snapshot_cap"); v > 0 {
			cfg.SnapshotCap = v
		}
	}
	if v := c.GetString("api_key"); v != "" {
		cfg.APIKey = v
	}
	if v := c.GetDuration("retention"); v > 0 {
		cfg.Retention = v
	}
	if v := c.GetDuration("maintenance_interval"); v > 0 {
		cfg.MaintenanceInterval = v
	}
	if v := c.GetDuration("probe_timeout"); v > 0 {
		cfg.ProbeTimeout = v
	}
	if v := c.GetInt("probe_count"); v > 0 {
		cfg.ProbeCount = v
	}
	return cfg
}
