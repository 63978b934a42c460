package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/lectorium/lectorium/internal/buildinfo"
	"github.com/lectorium/lectorium/internal/cli"
	"github.com/lectorium/lectorium/internal/config"
	"github.com/lectorium/lectorium/internal/flagx"
	"github.com/lectorium/lectorium/internal/logging"
)

// oneShot holds the flags that run a single operation and exit instead of
// starting the interactive shell.
type oneShot struct {
	sanitizeIn  string
	sanitizeOut string
	drain       bool
	janitor     bool
}

func parseOneShot() *oneShot {
	args := flagx.FilterArgs(os.Args[1:], []string{"-sanitize", "-out", "-drain", "-janitor"})

	fs := flag.NewFlagSet("oneshot", flag.ContinueOnError)
	var o oneShot
	fs.StringVar(&o.sanitizeIn, "sanitize", "", "sanitize this document and exit")
	fs.StringVar(&o.sanitizeOut, "out", "", "output path for -sanitize")
	fs.BoolVar(&o.drain, "drain", false, "drain the sync queue and exit")
	fs.BoolVar(&o.janitor, "janitor", false, "run one janitor sweep and exit")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
	return &o
}

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	once := parseOneShot()

	var logger logging.Logger
	if cfg.LogPath != "" {
		zl := logging.NewRotatingZapLogger(cfg.LogPath, 10, 3)
		defer func() { _ = zl.Sync() }()
		logger = zl
	} else {
		logger = logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	switch {
	case once.sanitizeIn != "":
		out := once.sanitizeOut
		if out == "" {
			out = once.sanitizeIn + ".sanitized.pdf"
		}
		app.Sanitize(ctx, once.sanitizeIn, out)
	case once.drain:
		app.DrainOnce(ctx)
	case once.janitor:
		app.SweepOnce(ctx)
	default:
		app.Run(ctx)
	}
}
