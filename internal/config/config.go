// Package config loads runtime settings for the sync engine: defaults first,
// then a JSON file overlay, then command-line flags. Later sources win.
package config

import "time"

// Config holds runtime settings for the sync engine.
type Config struct {
	// DataDir holds the SQLite database file.
	DataDir string
	// SidebandDir is the blob sideband root; empty disables the sideband
	// and blobs are stored inline.
	SidebandDir string

	// Remote document store placement.
	RemoteBucket string
	RemoteRegion string
	// RemoteEndpoint overrides the S3 endpoint (minio, test doubles).
	RemoteEndpoint string

	// OnlineCheckInterval is how often the agent probes remote reachability.
	OnlineCheckInterval time.Duration

	// StorageLimit is the local storage budget in bytes; the janitor starts
	// evicting once usage exceeds it.
	StorageLimit int64
	// EvictionHeadroom is the fraction of StorageLimit to free below the
	// threshold once eviction starts.
	EvictionHeadroom float64

	// SnapshotInterval rate-limits version snapshots per document.
	SnapshotInterval time.Duration

	// LogPath, when set, routes logs to a rotated file instead of stderr.
	LogPath string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "."
	c.SidebandDir = "blobs"
	c.RemoteBucket = "lectorium-documents"
	c.RemoteRegion = "us-east-1"
	c.OnlineCheckInterval = 3 * time.Second
	c.StorageLimit = 500 << 20
	c.EvictionHeadroom = 0.3
	c.SnapshotInterval = 5 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
