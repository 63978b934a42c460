// Package syncq drains the durable sync queue in the background whenever the
// remote store is reachable and a credential is available.
package syncq

import (
	"context"
	"errors"
	"time"

	"github.com/lectorium/lectorium/internal/auth"
	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/logging"
	"github.com/lectorium/lectorium/internal/models"
	"github.com/lectorium/lectorium/internal/remote"
	"github.com/lectorium/lectorium/internal/repo/content"
	"github.com/lectorium/lectorium/internal/repo/files"
	"github.com/lectorium/lectorium/internal/repo/settings"
	"github.com/sethvargo/go-retry"
)

const uploadRetries = 2

// Processor periodically drains pending reconciliation intents oldest-first.
// Items are removed only after the corresponding remote write succeeded, so
// a crash mid-drain re-delivers rather than loses.
type Processor struct {
	settings settings.Repository
	files    files.Repository
	content  content.Repository
	remote   remote.Store
	prober   remote.Prober
	creds    *auth.Credentials
	log      logging.Logger

	interval time.Duration
}

func New(
	settingsRepo settings.Repository,
	filesRepo files.Repository,
	contentRepo content.Repository,
	remoteStore remote.Store,
	prober remote.Prober,
	creds *auth.Credentials,
	interval time.Duration,
	log logging.Logger,
) *Processor {
	return &Processor{
		settings: settingsRepo,
		files:    filesRepo,
		content:  contentRepo,
		remote:   remoteStore,
		prober:   prober,
		creds:    creds,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled, attempting a drain every interval.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
			if err := p.Drain(ctx); err != nil {
				p.log.Warn(ctx, "sync drain interrupted", "err", err)
			}
		}
	}
}

// Drain processes pending items oldest-first. The first transient failure
// stops the pass (the queue is ordered, later items may depend on earlier
// ones); the next tick starts over. Authorization failures stop the pass
// too: the credential refresh flow is external, retrying here is futile.
func (p *Processor) Drain(ctx context.Context) error {

	if !p.prober.Online(ctx) || !p.creds.Valid() {
		return nil
	}

	items, err := p.settings.PendingQueue(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	p.log.Info(ctx, "draining sync queue", "pending", len(items))

	for _, item := range items {
		if err := p.process(ctx, item); err != nil {
			if errors.Is(err, common.ErrUnauthorized) {
				p.log.Warn(ctx, "sync paused until credential refresh", "file_id", item.FileID)
			}
			return err
		}
		if err := p.settings.Dequeue(ctx, item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) process(ctx context.Context, item *models.SyncQueueItem) error {

	log := p.log.With("file_id", item.FileID, "action", string(item.Action))

	backoff := retry.WithMaxRetries(uploadRetries, retry.NewExponential(time.Second))
	var newID string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		switch item.Action {
		case models.SyncActionCreate:
			newID, err = p.remote.Upload(ctx, item.Blob, item.Name, item.Parents, item.MimeType)
		case models.SyncActionUpdate:
			err = p.remote.Update(ctx, item.FileID, item.Blob, item.MimeType)
		}
		if errors.Is(err, common.ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, common.ErrPermission) && item.Action == models.SyncActionUpdate {
		// overwrite forbidden: deliver the content as a fresh copy and
		// rehome the local record under the copy's id
		log.Warn(ctx, "queued update forbidden, delivering as copy")
		newID, uerr := p.remote.Upload(ctx, item.Blob, item.Name+" (copy)", item.Parents, item.MimeType)
		if uerr != nil {
			return uerr
		}
		return p.promote(ctx, item.FileID, newID)
	}
	if err != nil {
		return err
	}

	if item.Action == models.SyncActionCreate {
		if err := p.promote(ctx, item.FileID, newID); err != nil {
			return err
		}
		log.Info(ctx, "queued document promoted to remote store", "remote_id", newID)
		return nil
	}

	log.Info(ctx, "queued update delivered")
	if err := p.files.SetPendingSync(ctx, item.FileID, false); err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	return nil
}

// promote rehomes the local record and its derived layers under the id the
// remote assigned. A record evicted since enqueue is not an error; the
// remote write already succeeded.
func (p *Processor) promote(ctx context.Context, oldID, newID string) error {
	if err := p.files.PromoteID(ctx, oldID, newID); err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if err := p.content.PromoteFileID(ctx, oldID, newID); err != nil {
		return err
	}
	if err := p.files.SetPendingSync(ctx, newID, false); err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	return nil
}
