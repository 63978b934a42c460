// Package save runs the per-save state machine: take the document lock,
// encode through the codec (falling back to the portable wrapper container
// when the native format cannot be mutated), route by connectivity and
// authorization, and leave a durable sync-queue intent behind whenever the
// remote write could not complete.
package save

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lectorium/lectorium/internal/auth"
	"github.com/lectorium/lectorium/internal/codec"
	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/integrity"
	"github.com/lectorium/lectorium/internal/logging"
	"github.com/lectorium/lectorium/internal/models"
	"github.com/lectorium/lectorium/internal/remote"
	"github.com/lectorium/lectorium/internal/repo/content"
	"github.com/lectorium/lectorium/internal/repo/files"
	"github.com/lectorium/lectorium/internal/repo/settings"
	"github.com/lectorium/lectorium/internal/wrapper"
	"github.com/sethvargo/go-retry"
)

// Mode reports how a save terminated.
type Mode string

const (
	// ModeRemote: the remote store holds the new content.
	ModeRemote Mode = "remote"
	// ModeLocal: local-only persistence, nothing to reconcile yet.
	ModeLocal Mode = "local"
	// ModeQueued: persisted locally with a durable reconciliation intent.
	ModeQueued Mode = "queued"
	// ModeDeferred: the document lock was held; try again later.
	ModeDeferred Mode = "deferred"
)

// WrapperMimeType marks the portable fallback container.
const WrapperMimeType = "application/x-lectorium+zip"

const lockRetryDelay = 500 * time.Millisecond

// Request is one save attempt.
type Request struct {
	Doc      models.Document
	Password string
	Author   string

	Words       map[int][]models.OcrWord
	Annotations []models.Annotation
	PageOffset  int
	Semantic    map[int]models.SemanticPage
}

// Result is the outcome of a save attempt.
type Result struct {
	// ID is the effective document id after the save; promoted to the
	// remote id when a first upload succeeded, or a fresh local id when
	// a permission failure forced a copy.
	ID      string
	Mode    Mode
	Wrapped bool // container fallback was used
	Copied  bool // permission failure forced a copy instead of update
}

// Orchestrator wires the save state machine's collaborators.
type Orchestrator struct {
	files    files.Repository
	content  content.Repository
	settings settings.Repository
	detector *integrity.Detector
	codec    *codec.Worker
	remote   remote.Store
	prober   remote.Prober
	creds    *auth.Credentials
	log      logging.Logger

	snapshotEvery time.Duration
}

func New(
	filesRepo files.Repository,
	contentRepo content.Repository,
	settingsRepo settings.Repository,
	detector *integrity.Detector,
	codecWorker *codec.Worker,
	remoteStore remote.Store,
	prober remote.Prober,
	creds *auth.Credentials,
	snapshotEvery time.Duration,
	log logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		files:         filesRepo,
		content:       contentRepo,
		settings:      settingsRepo,
		detector:      detector,
		codec:         codecWorker,
		remote:        remoteStore,
		prober:        prober,
		creds:         creds,
		snapshotEvery: snapshotEvery,
		log:           log,
	}
}

// Save runs the state machine. A held lock yields ModeDeferred, not an
// error; a second save for the same document never interrupts the first.
// Authorization failures surface to the caller after local persistence —
// credentials are refreshed by an external flow, never retried here.
func (o *Orchestrator) Save(ctx context.Context, req Request) (*Result, error) {

	log := o.log.With("file_id", req.Doc.ID)

	// 1. Lock, with a single retry after a short delay.
	backoff := retry.WithMaxRetries(1, retry.NewConstant(lockRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := o.settings.AcquireLock(ctx, req.Doc.ID)
		if errors.Is(err, common.ErrLocked) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, common.ErrLocked) {
		log.Info(ctx, "document locked, save deferred")
		return &Result{ID: req.Doc.ID, Mode: ModeDeferred}, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := o.settings.ReleaseLock(context.WithoutCancel(ctx), req.Doc.ID); err != nil {
			log.Error(ctx, "failed to release lock", "err", err)
		}
	}()

	// 2. Encode. A protected source switches to the wrapper container and
	// forces copy mode, unless the document was local-only anyway.
	blob, mimeType, wrapped, err := o.encode(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &Result{ID: req.Doc.ID, Wrapped: wrapped}
	name := req.Doc.Name
	forceCopy := wrapped && !req.Doc.IsLocalOnly()

	// 3. Route.
	online := o.prober.Online(ctx)
	authed := o.creds.Valid()
	localOnly := req.Doc.IsLocalOnly()

	switch {
	case forceCopy:
		// never overwrite an original whose mutated form cannot be
		// represented natively
		copyID := models.LocalIDPrefix + uuid.NewString()
		res.ID = copyID
		res.Copied = true
		if online && authed {
			if err := o.uploadAndPromote(ctx, res, req, blob, name, mimeType); err != nil {
				return res, err
			}
		} else {
			o.queueFallback(ctx, res, req, blob, name, mimeType, models.SyncActionCreate)
		}

	case localOnly && !authed:
		// nothing to reconcile yet
		if err := o.persistLocal(ctx, res.ID, req, blob, name, mimeType, false); err != nil {
			return nil, err
		}
		res.Mode = ModeLocal

	case !online || !authed:
		action := models.SyncActionUpdate
		if localOnly {
			action = models.SyncActionCreate
		}
		o.queueFallback(ctx, res, req, blob, name, mimeType, action)

	case localOnly:
		// first sync: create, then promote the id everywhere
		if err := o.uploadAndPromote(ctx, res, req, blob, name, mimeType); err != nil {
			return res, err
		}

	default:
		if err := o.updateRemote(ctx, res, req, blob, name, mimeType); err != nil {
			return res, err
		}
	}

	// The saved blob carries the annotations burned in; the local rows must
	// agree, or the next open would shadow them with editable copies.
	if !wrapped && len(req.Annotations) > 0 {
		if err := o.content.MarkAnnotationsBurned(ctx, res.ID); err != nil {
			o.log.Error(ctx, "failed to mark annotations burned", "file_id", res.ID, "err", err)
		}
	}

	o.maybeSnapshot(ctx, res.ID, req, blob, name)
	return res, nil
}

// encode runs the codec; on a protected source it builds the wrapper
// container embedding the original bytes plus the same layers.
func (o *Orchestrator) encode(ctx context.Context, req Request) (blob []byte, mimeType string, wrapped bool, err error) {

	out, err := o.codec.Do(ctx, codec.Request{
		Op:          codec.OpBurnAll,
		Data:        req.Doc.Blob,
		Password:    req.Password,
		Words:       req.Words,
		Annotations: req.Annotations,
		PageOffset:  req.PageOffset,
		Semantic:    req.Semantic,
	})
	if err == nil {
		return out, req.Doc.MimeType, false, nil
	}

	if errors.Is(err, common.ErrProtected) || errors.Is(err, common.ErrPasswordRequired) {
		pkg, werr := wrapper.Encode(&wrapper.Container{
			Manifest: wrapper.Manifest{Type: wrapper.TypePDFWrapper, Name: req.Doc.Name},
			Data: wrapper.Data{
				Annotations:  req.Annotations,
				PageOffset:   req.PageOffset,
				SemanticData: req.Semantic,
			},
			Original: req.Doc.Blob,
		})
		if werr != nil {
			return nil, "", false, fmt.Errorf("failed to build fallback container: %w", werr)
		}
		o.log.Warn(ctx, "document protected, falling back to wrapper container", "file_id", req.Doc.ID)
		return pkg, WrapperMimeType, true, nil
	}

	// corrupt and unexpected codec failures surface verbatim
	return nil, "", false, err
}

func (o *Orchestrator) persistLocal(ctx context.Context, id string, req Request, blob []byte, name, mimeType string, pending bool) error {
	return o.files.Save(ctx, &models.OfflineRecord{
		Document: models.Document{
			ID:       id,
			Name:     name,
			MimeType: mimeType,
			Parents:  req.Doc.Parents,
			Blob:     blob,
			Pinned:   req.Doc.Pinned,
		},
		PendingSync: pending,
	})
}

// queueFallback persists locally and records a durable intent; transient
// trouble never loses data.
func (o *Orchestrator) queueFallback(ctx context.Context, res *Result, req Request, blob []byte, name, mimeType string, action models.SyncAction) {

	if err := o.persistLocal(ctx, res.ID, req, blob, name, mimeType, true); err != nil {
		o.log.Error(ctx, "failed to persist offline copy", "file_id", res.ID, "err", err)
	}
	if err := o.settings.Enqueue(ctx, &models.SyncQueueItem{
		FileID:   res.ID,
		Action:   action,
		Blob:     blob,
		Name:     name,
		MimeType: mimeType,
		Parents:  req.Doc.Parents,
	}); err != nil {
		o.log.Error(ctx, "failed to enqueue sync item", "file_id", res.ID, "err", err)
	}
	res.Mode = ModeQueued
}

func (o *Orchestrator) uploadAndPromote(ctx context.Context, res *Result, req Request, blob []byte, name, mimeType string) error {

	newID, err := o.remote.Upload(ctx, blob, name, req.Doc.Parents, mimeType)
	if err != nil {
		return o.classifyRemoteFailure(ctx, res, req, blob, name, mimeType, models.SyncActionCreate, err)
	}

	// local layers follow the document to its remote identity
	if err := o.persistLocal(ctx, res.ID, req, blob, name, mimeType, false); err != nil {
		return err
	}
	if err := o.files.PromoteID(ctx, res.ID, newID); err != nil {
		return err
	}
	if err := o.content.PromoteFileID(ctx, res.ID, newID); err != nil {
		return err
	}
	res.ID = newID
	res.Mode = ModeRemote

	if err := o.detector.Commit(ctx, newID, blob, len(req.Annotations)); err != nil {
		return err
	}
	o.log.Info(ctx, "document promoted to remote store", "file_id", newID)
	return nil
}

func (o *Orchestrator) updateRemote(ctx context.Context, res *Result, req Request, blob []byte, name, mimeType string) error {

	err := o.remote.Update(ctx, res.ID, blob, mimeType)
	if err != nil {
		return o.classifyRemoteFailure(ctx, res, req, blob, name, mimeType, models.SyncActionUpdate, err)
	}

	if err := o.persistLocal(ctx, res.ID, req, blob, name, mimeType, false); err != nil {
		return err
	}
	if err := o.detector.Commit(ctx, res.ID, blob, len(req.Annotations)); err != nil {
		return err
	}
	res.Mode = ModeRemote
	return nil
}

// classifyRemoteFailure routes a failed remote write: authorization surfaces,
// permission falls back to a copy, everything else is transient and queues.
func (o *Orchestrator) classifyRemoteFailure(ctx context.Context, res *Result, req Request, blob []byte, name, mimeType string, action models.SyncAction, err error) error {

	switch {
	case errors.Is(err, common.ErrUnauthorized):
		// persist so nothing is lost, but surface: the credential must be
		// refreshed by the external flow, never silently retried
		if perr := o.persistLocal(ctx, res.ID, req, blob, name, mimeType, true); perr != nil {
			o.log.Error(ctx, "failed to persist offline copy", "file_id", res.ID, "err", perr)
		}
		return err

	case errors.Is(err, common.ErrPermission) && action == models.SyncActionUpdate:
		// not retried as update; fall back to creating a copy
		o.log.Warn(ctx, "update forbidden, falling back to copy", "file_id", res.ID)
		copyID := models.LocalIDPrefix + uuid.NewString()
		res.ID = copyID
		res.Copied = true
		return o.uploadAndPromote(ctx, res, req, blob, name+" (copy)", mimeType)

	default:
		// transient by exclusion: a flaky connection never loses data
		o.log.Warn(ctx, "remote write failed, queued for retry", "file_id", res.ID, "err", err)
		o.queueFallback(ctx, res, req, blob, name, mimeType, action)
		return nil
	}
}

// maybeSnapshot records at most one version snapshot per snapshotEvery of
// wall-clock time per document, so frequent autosaves do not flood history.
func (o *Orchestrator) maybeSnapshot(ctx context.Context, id string, req Request, blob []byte, name string) {

	latest, err := o.content.LatestVersion(ctx, id)
	if err == nil && time.Since(latest.Timestamp) < o.snapshotEvery {
		return
	}
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		o.log.Error(ctx, "failed to read version history", "file_id", id, "err", err)
		return
	}

	if err := o.content.AddVersion(ctx, &models.DocVersion{
		ID:      uuid.NewString(),
		FileID:  id,
		Author:  req.Author,
		Name:    name,
		Content: blob,
	}); err != nil {
		o.log.Error(ctx, "failed to record version snapshot", "file_id", id, "err", err)
	}
}
