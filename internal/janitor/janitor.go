// Package janitor keeps local storage under its budget. When usage crosses
// the configured limit it evicts the coldest offline copies (skipping pinned
// and not-yet-synced ones) until enough headroom is freed, then sweeps the
// sideband for blobs no record refers to.
package janitor

import (
	"context"
	"time"

	"github.com/lectorium/lectorium/internal/blob"
	"github.com/lectorium/lectorium/internal/logging"
	"github.com/lectorium/lectorium/internal/repo/content"
	"github.com/lectorium/lectorium/internal/repo/files"
)

// Janitor enforces the storage budget over the local store and sideband.
type Janitor struct {
	files    files.Repository
	content  content.Repository
	sideband *blob.Sideband
	log      logging.Logger

	limit    int64
	headroom float64
	interval time.Duration
}

func New(
	filesRepo files.Repository,
	contentRepo content.Repository,
	sideband *blob.Sideband,
	limit int64,
	headroom float64,
	interval time.Duration,
	log logging.Logger,
) *Janitor {
	return &Janitor{
		files:    filesRepo,
		content:  contentRepo,
		sideband: sideband,
		limit:    limit,
		headroom: headroom,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is cancelled, sweeping every interval.
func (j *Janitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(j.interval):
			if err := j.Sweep(ctx); err != nil {
				j.log.Error(ctx, "janitor sweep failed", "err", err)
			}
		}
	}
}

// cacheTTL bounds how long a cached remote download is kept.
const cacheTTL = 7 * 24 * time.Hour

// Sweep runs one eviction pass, then the orphan sweep and cache pruning.
func (j *Janitor) Sweep(ctx context.Context) error {
	if err := j.evict(ctx); err != nil {
		return err
	}
	if err := j.sweepOrphans(ctx); err != nil {
		return err
	}
	return j.files.PruneCache(ctx, cacheTTL)
}

// Usage sums inline record content and sideband files.
func (j *Janitor) Usage(ctx context.Context) (int64, error) {
	inline, err := j.files.InlineSize(ctx)
	if err != nil {
		return 0, err
	}
	side, err := j.sideband.TotalSize()
	if err != nil {
		return 0, err
	}
	return inline + side, nil
}

// evict removes cold offline copies until usage drops below the limit minus
// headroom. Pinned copies and copies still awaiting sync are never evicted.
func (j *Janitor) evict(ctx context.Context) error {

	usage, err := j.Usage(ctx)
	if err != nil {
		return err
	}
	if usage <= j.limit {
		return nil
	}
	target := int64(float64(j.limit) * (1 - j.headroom))
	j.log.Info(ctx, "storage over budget, evicting", "usage", usage, "limit", j.limit, "target", target)

	recs, err := j.files.List(ctx) // coldest first
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if usage <= target {
			break
		}
		if rec.Pinned || rec.PendingSync {
			continue
		}
		if err := j.evictOne(ctx, rec.ID); err != nil {
			j.log.Error(ctx, "failed to evict offline copy", "file_id", rec.ID, "err", err)
			continue
		}
		usage -= rec.Size
		j.log.Info(ctx, "evicted offline copy", "file_id", rec.ID, "size", rec.Size)
	}
	return nil
}

// evictOne cascades: derived layers first, then the blob and record. The
// audit baseline stays so a later re-download is still integrity-checked.
func (j *Janitor) evictOne(ctx context.Context, id string) error {
	if err := j.content.DeleteOcrByFile(ctx, id); err != nil {
		return err
	}
	if err := j.content.DeleteVectorsByFile(ctx, id); err != nil {
		return err
	}
	if err := j.content.DeleteVersionsByFile(ctx, id); err != nil {
		return err
	}
	return j.files.Delete(ctx, id)
}

// sweepOrphans deletes sideband blobs whose record is gone. A crash between
// the sideband write and the record commit leaves exactly this kind of
// orphan behind.
func (j *Janitor) sweepOrphans(ctx context.Context) error {

	if !j.sideband.Available() {
		return nil
	}
	ids, err := j.sideband.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	recs, err := j.files.List(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		known[rec.ID] = struct{}{}
	}

	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		if err := j.sideband.Delete(id); err != nil {
			j.log.Error(ctx, "failed to delete orphan blob", "file_id", id, "err", err)
			continue
		}
		j.log.Info(ctx, "deleted orphan sideband blob", "file_id", id)
	}
	return nil
}
