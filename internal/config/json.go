package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/lectorium/lectorium/internal/flagx"
	"github.com/lectorium/lectorium/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds.
type JsonConfig struct {
	DataDir             string         `json:"data_dir"`
	SidebandDir         string         `json:"sideband_dir"`
	RemoteBucket        string         `json:"remote_bucket"`
	RemoteRegion        string         `json:"remote_region"`
	RemoteEndpoint      string         `json:"remote_endpoint"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	StorageLimit        int64          `json:"storage_limit"`
	EvictionHeadroom    float64        `json:"eviction_headroom"`
	SnapshotInterval    timex.Duration `json:"snapshot_interval"`
	LogPath             string         `json:"log_path"`
}

// parseJson overlays cfg with values loaded from the JSON file named by the
// -c/-config flags. Zero-valued JSON fields leave the current value alone.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.SidebandDir != "" {
		cfg.SidebandDir = jc.SidebandDir
	}
	if jc.RemoteBucket != "" {
		cfg.RemoteBucket = jc.RemoteBucket
	}
	if jc.RemoteRegion != "" {
		cfg.RemoteRegion = jc.RemoteRegion
	}
	if jc.RemoteEndpoint != "" {
		cfg.RemoteEndpoint = jc.RemoteEndpoint
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
	if jc.StorageLimit != 0 {
		cfg.StorageLimit = jc.StorageLimit
	}
	if jc.EvictionHeadroom != 0 {
		cfg.EvictionHeadroom = jc.EvictionHeadroom
	}
	if jc.SnapshotInterval.Duration != 0 {
		cfg.SnapshotInterval = time.Duration(jc.SnapshotInterval.Duration)
	}
	if jc.LogPath != "" {
		cfg.LogPath = jc.LogPath
	}
}
