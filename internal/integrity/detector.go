// Package integrity detects out-of-band remote changes by comparing a cheap
// content fingerprint against the last verified baseline in the audit log.
package integrity

import (
	"context"
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/models"
	"github.com/lectorium/lectorium/internal/repo/content"
)

const (
	sampleChunks = 64
	chunkSize    = 1024
)

// Fingerprint hashes a sparse sample of the blob: its length plus up to 64
// evenly spaced 1 KiB chunks. Bounded time for multi-hundred-MB documents;
// stable for fixed bytes and sensitive to structural changes. Not
// cryptographic, and does not need to be.
func Fingerprint(blob []byte) uint64 {
	h := xxhash.New()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(blob)))
	_, _ = h.Write(lenBuf[:])

	if len(blob) <= sampleChunks*chunkSize {
		_, _ = h.Write(blob)
		return h.Sum64()
	}

	stride := len(blob) / sampleChunks
	for i := 0; i < sampleChunks; i++ {
		off := i * stride
		end := off + chunkSize
		if end > len(blob) {
			end = len(blob)
		}
		_, _ = h.Write(blob[off:end])
	}
	// tail is where appended-to documents change
	_, _ = h.Write(blob[len(blob)-chunkSize:])

	return h.Sum64()
}

// Detector checks document content against audit baselines.
type Detector struct {
	content content.Repository
}

func NewDetector(content content.Repository) *Detector {
	return &Detector{content: content}
}

// Check recomputes the blob's fingerprint and compares it with the stored
// baseline. A missing baseline is first use, not a conflict: it is recorded
// and the check passes. On divergence common.ErrConflict is returned; the
// caller must not merge until the conflict is resolved.
func (d *Detector) Check(ctx context.Context, fileID string, blob []byte) error {

	hash := Fingerprint(blob)

	rec, err := d.content.GetAudit(ctx, fileID)
	if errors.Is(err, common.ErrNotFound) {
		return d.Commit(ctx, fileID, blob, 0)
	}
	if err != nil {
		return err
	}

	if rec.ContentHash != hash {
		return common.ErrConflict
	}
	return nil
}

// Commit records the blob's fingerprint as the new verified baseline, with
// the post-merge annotation count.
func (d *Detector) Commit(ctx context.Context, fileID string, blob []byte, annotationCount int) error {
	return d.content.UpsertAudit(ctx, &models.AuditRecord{
		FileID:          fileID,
		ContentHash:     Fingerprint(blob),
		AnnotationCount: annotationCount,
	})
}
