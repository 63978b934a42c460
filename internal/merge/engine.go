// Package merge combines annotation sets from three provenances — embedded
// in the document, imported from an external package, and locally authored —
// into one canonical set with deterministic precedence.
package merge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/integrity"
	"github.com/lectorium/lectorium/internal/logging"
	"github.com/lectorium/lectorium/internal/models"
	"github.com/lectorium/lectorium/internal/repo/content"
)

// Decline explains why a mutation was not applied. The zero value means the
// mutation went through. Mutations never return an error for precondition
// violations; they decline, and callers that care inspect the reason.
type Decline int

const (
	DeclineNone Decline = iota
	// DeclineBurned: the target annotation is burned and immutable.
	DeclineBurned
	// DeclineConflict: an integrity conflict is pending resolution.
	DeclineConflict
	// DeclineChecking: the integrity check has not finished yet.
	DeclineChecking
	// DeclineNoID: the annotation has no id and cannot be deduplicated.
	DeclineNoID
)

// Resolution picks a side after an integrity conflict.
type Resolution string

const (
	// ResolveUseExternal adopts the remote content as-is: local annotations
	// are discarded and the page offset and semantic cache reset.
	ResolveUseExternal Resolution = "use_external"
	// ResolveMerge keeps local work and proceeds with the normal
	// three-way merge ("restore lectorium").
	ResolveMerge Resolution = "merge"
)

// Engine holds the three provenance buckets for one document and keeps the
// merged view current. Merge recomputation is synchronous; there is no
// background merge pass.
type Engine struct {
	fileID   string
	content  content.Repository
	detector *integrity.Detector
	log      logging.Logger

	mu       sync.Mutex
	embedded []models.Annotation
	imported []models.Annotation
	local    []models.Annotation

	merged []models.Annotation

	checking bool
	conflict bool

	pageOffset int
}

func NewEngine(fileID string, content content.Repository, detector *integrity.Detector, log logging.Logger) *Engine {
	return &Engine{
		fileID:   fileID,
		content:  content,
		detector: detector,
		log:      log.With("file_id", fileID),
	}
}

// LoadLocal fills the local bucket from the content repository.
func (e *Engine) LoadLocal(ctx context.Context) error {
	rows, err := e.content.AnnotationsByFile(ctx, e.fileID)
	if err != nil {
		return fmt.Errorf("failed to load local annotations: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.local = e.local[:0]
	for _, a := range rows {
		e.local = append(e.local, *a)
	}
	e.remerge()
	return nil
}

// SetEmbedded replaces the embedded bucket (read from the document's own
// metadata envelope).
func (e *Engine) SetEmbedded(anns []models.Annotation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embedded = anns
	e.remerge()
}

// SetImported replaces the imported bucket (supplied by an external package
// the user opened).
func (e *Engine) SetImported(anns []models.Annotation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.imported = anns
	e.remerge()
}

// SetPageOffset records the page-numbering correction carried alongside the
// annotation layers.
func (e *Engine) SetPageOffset(offset int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pageOffset = offset
}

func (e *Engine) PageOffset() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pageOffset
}

// remerge rebuilds the merged view. Precedence embedded → imported → local,
// last write wins per id. Annotations without an id cannot be deduplicated
// and are dropped. Callers hold e.mu.
func (e *Engine) remerge() {
	if e.conflict {
		// conflict suppresses the merge output until resolved
		e.merged = nil
		return
	}

	byID := make(map[string]int)
	var order []models.Annotation

	for _, bucket := range [][]models.Annotation{e.embedded, e.imported, e.local} {
		for _, a := range bucket {
			if a.ID == "" {
				continue
			}
			if i, ok := byID[a.ID]; ok {
				order[i] = a
				continue
			}
			byID[a.ID] = len(order)
			order = append(order, a)
		}
	}
	e.merged = order
}

// Merged returns the current canonical annotation set. Empty while a
// conflict is pending.
func (e *Engine) Merged() []models.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Annotation, len(e.merged))
	copy(out, e.merged)
	return out
}

// BeginCheck runs the integrity check for the document blob. While the check
// runs, and after a detected conflict, mutations decline.
func (e *Engine) BeginCheck(ctx context.Context, blob []byte) error {
	e.mu.Lock()
	e.checking = true
	e.mu.Unlock()

	err := e.detector.Check(ctx, e.fileID, blob)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.checking = false
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			e.conflict = true
			e.remerge()
			e.log.Warn(ctx, "content diverged from baseline, merge suppressed")
			return common.ErrConflict
		}
		return err
	}
	return nil
}

// ConflictPending reports whether an unresolved conflict suppresses the
// merge. Callers are expected to check this before mutating.
func (e *Engine) ConflictPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conflict
}

func (e *Engine) precondition() Decline {
	if e.checking {
		return DeclineChecking
	}
	if e.conflict {
		return DeclineConflict
	}
	return DeclineNone
}

// Add assigns an id if missing, appends to the local bucket, persists it and
// re-merges.
func (e *Engine) Add(ctx context.Context, a models.Annotation) Decline {
	e.mu.Lock()
	if d := e.precondition(); d != DeclineNone {
		e.mu.Unlock()
		return d
	}
	if a.ID == "" {
		a.ID = models.NewAnnotationID()
	}
	e.local = append(e.local, a)
	e.remerge()
	e.mu.Unlock()

	if err := e.content.UpsertAnnotation(ctx, e.fileID, &a); err != nil {
		e.log.Error(ctx, "failed to persist annotation", "err", err)
	}
	return DeclineNone
}

// Update replaces the annotation in the local and imported buckets. Declines
// for burned annotations and annotations without an id.
func (e *Engine) Update(ctx context.Context, a models.Annotation) Decline {
	e.mu.Lock()
	if d := e.precondition(); d != DeclineNone {
		e.mu.Unlock()
		return d
	}
	if a.ID == "" {
		e.mu.Unlock()
		return DeclineNoID
	}
	if e.isBurned(a.ID) {
		e.mu.Unlock()
		return DeclineBurned
	}

	replaced := false
	for _, bucket := range []*[]models.Annotation{&e.local, &e.imported} {
		for i := range *bucket {
			if (*bucket)[i].ID == a.ID {
				(*bucket)[i] = a
				replaced = true
			}
		}
	}
	if !replaced {
		e.local = append(e.local, a)
	}
	e.remerge()
	e.mu.Unlock()

	if err := e.content.UpsertAnnotation(ctx, e.fileID, &a); err != nil {
		e.log.Error(ctx, "failed to persist annotation", "err", err)
	}
	return DeclineNone
}

// Remove strips the id from the local and imported buckets and persists the
// deletion. Declines silently for burned annotations.
func (e *Engine) Remove(ctx context.Context, a models.Annotation) Decline {
	e.mu.Lock()
	if d := e.precondition(); d != DeclineNone {
		e.mu.Unlock()
		return d
	}
	if a.ID == "" {
		e.mu.Unlock()
		return DeclineNoID
	}
	if e.isBurned(a.ID) {
		e.mu.Unlock()
		return DeclineBurned
	}

	e.local = drop(e.local, a.ID)
	e.imported = drop(e.imported, a.ID)
	e.remerge()
	e.mu.Unlock()

	if err := e.content.DeleteAnnotation(ctx, a.ID); err != nil {
		e.log.Error(ctx, "failed to delete annotation", "err", err)
	}
	return DeclineNone
}

// isBurned consults every bucket: an id burned anywhere is immutable
// everywhere. Callers hold e.mu.
func (e *Engine) isBurned(id string) bool {
	for _, bucket := range [][]models.Annotation{e.embedded, e.imported, e.local} {
		for _, a := range bucket {
			if a.ID == id && a.IsBurned {
				return true
			}
		}
	}
	return false
}

func drop(bucket []models.Annotation, id string) []models.Annotation {
	out := bucket[:0]
	for _, a := range bucket {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

// Resolve clears a pending conflict. With ResolveUseExternal all local
// annotations are discarded and the page offset and semantic cache reset;
// with ResolveMerge the normal three-way merge proceeds. Either way a fresh
// fingerprint is committed as the new baseline with the post-resolution
// annotation count.
func (e *Engine) Resolve(ctx context.Context, res Resolution, blob []byte) error {
	e.mu.Lock()
	if !e.conflict {
		e.mu.Unlock()
		return nil
	}

	if res == ResolveUseExternal {
		e.local = nil
		e.imported = nil
		e.pageOffset = 0
	}
	e.conflict = false
	e.remerge()
	count := len(e.merged)
	e.mu.Unlock()

	if res == ResolveUseExternal {
		if err := e.content.DeleteAnnotationsByFile(ctx, e.fileID); err != nil {
			return err
		}
		if err := e.content.DeleteOcrByFile(ctx, e.fileID); err != nil {
			return err
		}
	}

	if err := e.detector.Commit(ctx, e.fileID, blob, count); err != nil {
		return err
	}
	e.log.Info(ctx, "conflict resolved", "resolution", string(res), "annotations", count)
	return nil
}
