// Package content stores per-document derived layers: annotations, the OCR
// cache, version snapshots, audit baselines and derived vector data.
package content

import (
	"context"
	"time"

	"github.com/lectorium/lectorium/internal/models"
)

// Repository is the typed accessor for document-derived content.
type Repository interface {
	// Annotations.
	UpsertAnnotation(ctx context.Context, fileID string, a *models.Annotation) error
	DeleteAnnotation(ctx context.Context, id string) error
	AnnotationsByFile(ctx context.Context, fileID string) ([]*models.Annotation, error)
	DeleteAnnotationsByFile(ctx context.Context, fileID string) error
	MarkAnnotationsBurned(ctx context.Context, fileID string) error

	// OCR cache, keyed "<fileId>-<page>".
	PutOcr(ctx context.Context, rec *models.OcrRecord) error
	GetOcr(ctx context.Context, fileID string, page int) (*models.OcrRecord, error)
	OcrByFile(ctx context.Context, fileID string) ([]*models.OcrRecord, error)
	DeleteOcrByFile(ctx context.Context, fileID string) error

	// Version snapshots, capped at models.VersionRetention per document.
	AddVersion(ctx context.Context, v *models.DocVersion) error
	LatestVersion(ctx context.Context, fileID string) (*models.DocVersion, error)
	VersionsByFile(ctx context.Context, fileID string) ([]*models.DocVersion, error)
	DeleteVersionsByFile(ctx context.Context, fileID string) error

	// Audit baselines.
	UpsertAudit(ctx context.Context, rec *models.AuditRecord) error
	GetAudit(ctx context.Context, fileID string) (*models.AuditRecord, error)
	DeleteAudit(ctx context.Context, fileID string) error

	// Derived vector data per page.
	PutVectors(ctx context.Context, fileID string, page int, data []byte) error
	DeleteVectorsByFile(ctx context.Context, fileID string) error

	// PromoteFileID rewrites every layer's file id after first upload.
	PromoteFileID(ctx context.Context, oldID, newID string) error
}

// now is swappable in tests.
var now = time.Now
