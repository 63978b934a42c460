package config

import (
	"flag"
	"os"
	"time"

	"github.com/lectorium/lectorium/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   data directory for the local store
//	-s string   sideband blob directory ("" disables)
//	-b string   remote store bucket
//	-e string   remote store endpoint override
//	-i int      online check interval in seconds
//	-l int      storage limit in megabytes
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-b", "-e", "-i", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory for the local store")
	fs.StringVar(&cfg.SidebandDir, "s", cfg.SidebandDir, "sideband blob directory")
	fs.StringVar(&cfg.RemoteBucket, "b", cfg.RemoteBucket, "remote store bucket")
	fs.StringVar(&cfg.RemoteEndpoint, "e", cfg.RemoteEndpoint, "remote store endpoint override")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	storageLimitMB := fs.Int64("l", cfg.StorageLimit>>20, "storage limit (in megabytes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.StorageLimit = *storageLimitMB << 20
}
