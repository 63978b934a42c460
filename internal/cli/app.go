// Package cli is the interactive shell around the sync engine: it wires the
// store, repositories, codec worker and remote client together and exposes
// the open/annotate/save/sanitize workflow as REPL commands.
package cli

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/lectorium/lectorium/internal/auth"
	"github.com/lectorium/lectorium/internal/blob"
	"github.com/lectorium/lectorium/internal/codec"
	"github.com/lectorium/lectorium/internal/config"
	"github.com/lectorium/lectorium/internal/integrity"
	"github.com/lectorium/lectorium/internal/janitor"
	"github.com/lectorium/lectorium/internal/logging"
	"github.com/lectorium/lectorium/internal/remote"
	"github.com/lectorium/lectorium/internal/repo/content"
	"github.com/lectorium/lectorium/internal/repo/files"
	"github.com/lectorium/lectorium/internal/repo/settings"
	"github.com/lectorium/lectorium/internal/save"
	"github.com/lectorium/lectorium/internal/store"
	"github.com/lectorium/lectorium/internal/syncq"
	"golang.org/x/sync/errgroup"
)

// Mode is the connectivity state shown in the prompt.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const dbFileName = "lectorium.db"

// App holds the wired engine and the interactive session state.
type App struct {
	config *config.Config
	log    logging.Logger

	store    *store.Store
	files    files.Repository
	content  content.Repository
	settings settings.Repository
	sideband *blob.Sideband

	detector *integrity.Detector
	codec    *codec.Worker
	remote   remote.Store
	prober   remote.Prober
	creds    *auth.Credentials

	orch *save.Orchestrator
	proc *syncq.Processor
	jan  *janitor.Janitor

	Mode    Mode
	reader  *bufio.Reader
	session *session
}

func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {

	st, err := store.Shared(ctx, filepath.Join(cfg.DataDir, dbFileName))
	if err != nil {
		return nil, err
	}

	sideband, err := blob.Open(cfg.SidebandDir)
	if err != nil {
		return nil, err
	}

	filesRepo := files.NewSQLiteRepository(st.DB(), sideband)
	contentRepo := content.NewSQLiteRepository(st.DB())
	settingsRepo := settings.NewSQLiteRepository(st.DB())

	detector := integrity.NewDetector(contentRepo)
	codecWorker := codec.NewWorker(log)
	creds := &auth.Credentials{}

	s3, err := remote.NewS3Store(ctx, cfg.RemoteBucket, cfg.RemoteRegion, cfg.RemoteEndpoint,
		os.Getenv("LECTORIUM_ACCESS_KEY"), os.Getenv("LECTORIUM_SECRET_KEY"), "")
	if err != nil {
		return nil, err
	}

	orch := save.New(filesRepo, contentRepo, settingsRepo, detector, codecWorker,
		s3, s3, creds, cfg.SnapshotInterval, log)
	proc := syncq.New(settingsRepo, filesRepo, contentRepo, s3, s3, creds,
		cfg.OnlineCheckInterval, log)
	jan := janitor.New(filesRepo, contentRepo, sideband,
		cfg.StorageLimit, cfg.EvictionHeadroom, time.Minute, log)

	return &App{
		config:   cfg,
		log:      log,
		store:    st,
		files:    filesRepo,
		content:  contentRepo,
		settings: settingsRepo,
		sideband: sideband,
		detector: detector,
		codec:    codecWorker,
		remote:   s3,
		prober:   s3,
		creds:    creds,
		orch:     orch,
		proc:     proc,
		jan:      jan,
		Mode:     ModeOffline,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		a.log.Info(ctx, "connectivity changed", "mode", string(mode))
	}
}

// Run starts the background workers and the REPL, and blocks until the user
// exits. The workers are stopped and drained before the store closes under
// them.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.StartOnlineStatusWatcher(gctx, a.config.OnlineCheckInterval)
		return nil
	})
	g.Go(func() error {
		a.proc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.jan.Run(gctx)
		return nil
	})

	a.Root(ctx)
	cancel()
	_ = g.Wait()
	_ = a.store.Close()
}

// StartOnlineStatusWatcher probes remote reachability on an interval and
// flips the prompt mode accordingly.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			online := a.prober.Online(probeCtx)
			cancel()

			if online {
				a.setMode(ctx, ModeOnline)
			} else {
				a.setMode(ctx, ModeOffline)
			}

		case <-ctx.Done():
			return
		}
	}
}
