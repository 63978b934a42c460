package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/dbx"
	"github.com/lectorium/lectorium/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) UpsertAnnotation(ctx context.Context, fileID string, a *models.Annotation) error {

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal annotation: %w", err)
	}

	query := `INSERT INTO annotations (id, file_id, page, data, is_burned)
			values (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET file_id = excluded.file_id,
				page = excluded.page,
				data = excluded.data,
				is_burned = excluded.is_burned
	`
	_, err = r.db.ExecContext(ctx, query, a.ID, fileID, a.Page, data, a.IsBurned)
	if err != nil {
		return fmt.Errorf("failed to upsert annotation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAnnotation(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `delete from annotations where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) AnnotationsByFile(ctx context.Context, fileID string) ([]*models.Annotation, error) {

	rows, err := r.db.QueryContext(ctx, `select data from annotations where file_id=? order by page, id`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	var result []*models.Annotation
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		var a models.Annotation
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal annotation: %w", err)
		}
		result = append(result, &a)
	}

	return result, rows.Err()
}

func (r *SQLiteRepository) DeleteAnnotationsByFile(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `delete from annotations where file_id=?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete annotations: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkAnnotationsBurned(ctx context.Context, fileID string) error {
	// is_burned lives both in the column and the JSON payload; rewrite both.
	rows, err := r.AnnotationsByFile(ctx, fileID)
	if err != nil {
		return err
	}
	for _, a := range rows {
		if a.IsBurned {
			continue
		}
		a.IsBurned = true
		if err := r.UpsertAnnotation(ctx, fileID, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) PutOcr(ctx context.Context, rec *models.OcrRecord) error {

	words, err := json.Marshal(rec.Words)
	if err != nil {
		return fmt.Errorf("failed to marshal ocr words: %w", err)
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = now()
	}

	query := `INSERT INTO ocr_cache (key, file_id, page, words, markdown, processed_at)
			values (?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET words = excluded.words,
				markdown = excluded.markdown,
				processed_at = excluded.processed_at
	`
	_, err = r.db.ExecContext(ctx, query,
		models.OcrKey(rec.FileID, rec.Page), rec.FileID, rec.Page, words, rec.Markdown, rec.ProcessedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert ocr record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) scanOcr(rows *sql.Rows) (*models.OcrRecord, error) {
	var rec models.OcrRecord
	var words []byte
	var processedAt int64
	if err := rows.Scan(&rec.FileID, &rec.Page, &words, &rec.Markdown, &processedAt); err != nil {
		return nil, fmt.Errorf("failed to scan ocr record: %w", err)
	}
	if err := json.Unmarshal(words, &rec.Words); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ocr words: %w", err)
	}
	rec.ProcessedAt = time.UnixMilli(processedAt)
	return &rec, nil
}

func (r *SQLiteRepository) GetOcr(ctx context.Context, fileID string, page int) (*models.OcrRecord, error) {

	rows, err := r.db.QueryContext(ctx,
		`select file_id, page, words, markdown, processed_at from ocr_cache where key=?`,
		models.OcrKey(fileID, page))
	if err != nil {
		return nil, fmt.Errorf("failed to get ocr record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, common.ErrNotFound
	}
	return r.scanOcr(rows)
}

func (r *SQLiteRepository) OcrByFile(ctx context.Context, fileID string) ([]*models.OcrRecord, error) {

	rows, err := r.db.QueryContext(ctx,
		`select file_id, page, words, markdown, processed_at from ocr_cache where file_id=? order by page`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ocr records: %w", err)
	}
	defer rows.Close()

	var result []*models.OcrRecord
	for rows.Next() {
		rec, err := r.scanOcr(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) DeleteOcrByFile(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `delete from ocr_cache where file_id=?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete ocr records: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) AddVersion(ctx context.Context, v *models.DocVersion) error {

	if v.Timestamp.IsZero() {
		v.Timestamp = now()
	}

	_, err := r.db.ExecContext(ctx,
		`insert into doc_versions (id, file_id, ts, author, name, content) values (?, ?, ?, ?, ?, ?)`,
		v.ID, v.FileID, v.Timestamp.UnixMilli(), v.Author, v.Name, v.Content)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}

	// Retention: keep the newest VersionRetention snapshots per document.
	_, err = r.db.ExecContext(ctx, `delete from doc_versions where file_id=? and id not in (
			select id from doc_versions where file_id=? order by ts desc limit ?)`,
		v.FileID, v.FileID, models.VersionRetention)
	if err != nil {
		return fmt.Errorf("failed to trim versions: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LatestVersion(ctx context.Context, fileID string) (*models.DocVersion, error) {

	var v models.DocVersion
	var ts int64
	err := r.db.QueryRowContext(ctx,
		`select id, file_id, ts, author, name, content from doc_versions where file_id=? order by ts desc limit 1`,
		fileID).Scan(&v.ID, &v.FileID, &ts, &v.Author, &v.Name, &v.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	v.Timestamp = time.UnixMilli(ts)
	return &v, nil
}

func (r *SQLiteRepository) VersionsByFile(ctx context.Context, fileID string) ([]*models.DocVersion, error) {

	rows, err := r.db.QueryContext(ctx,
		`select id, file_id, ts, author, name, content from doc_versions where file_id=? order by ts desc`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var result []*models.DocVersion
	for rows.Next() {
		var v models.DocVersion
		var ts int64
		if err := rows.Scan(&v.ID, &v.FileID, &ts, &v.Author, &v.Name, &v.Content); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.Timestamp = time.UnixMilli(ts)
		result = append(result, &v)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) DeleteVersionsByFile(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `delete from doc_versions where file_id=?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete versions: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpsertAudit(ctx context.Context, rec *models.AuditRecord) error {

	if rec.LastModified.IsZero() {
		rec.LastModified = now()
	}

	query := `INSERT INTO audit_log (file_id, content_hash, last_modified, annotation_count)
			values (?, ?, ?, ?)
			ON CONFLICT(file_id) DO UPDATE SET content_hash = excluded.content_hash,
				last_modified = excluded.last_modified,
				annotation_count = excluded.annotation_count
	`
	// uint64 hash is stored bit-cast to the signed INTEGER column.
	_, err := r.db.ExecContext(ctx, query, rec.FileID, int64(rec.ContentHash), rec.LastModified.UnixMilli(), rec.AnnotationCount)
	if err != nil {
		return fmt.Errorf("failed to upsert audit record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetAudit(ctx context.Context, fileID string) (*models.AuditRecord, error) {

	var rec models.AuditRecord
	var hash, lastModified int64
	err := r.db.QueryRowContext(ctx,
		`select file_id, content_hash, last_modified, annotation_count from audit_log where file_id=?`,
		fileID).Scan(&rec.FileID, &hash, &lastModified, &rec.AnnotationCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	rec.ContentHash = uint64(hash)
	rec.LastModified = time.UnixMilli(lastModified)
	return &rec, nil
}

func (r *SQLiteRepository) DeleteAudit(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `delete from audit_log where file_id=?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete audit record: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PutVectors(ctx context.Context, fileID string, page int, data []byte) error {

	query := `INSERT INTO vector_store (file_id, page, data)
			values (?, ?, ?)
			ON CONFLICT(file_id, page) DO UPDATE SET data = excluded.data
	`
	_, err := r.db.ExecContext(ctx, query, fileID, page, data)
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteVectorsByFile(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `delete from vector_store where file_id=?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// PromoteFileID rewrites every derived layer in one transaction so a crash
// mid-promotion never splits a document's layers across two ids.
func (r *SQLiteRepository) PromoteFileID(ctx context.Context, oldID, newID string) error {
	if db, ok := r.db.(*sql.DB); ok {
		return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return (&SQLiteRepository{db: tx}).promoteFileID(ctx, oldID, newID)
		})
	}
	return r.promoteFileID(ctx, oldID, newID)
}

func (r *SQLiteRepository) promoteFileID(ctx context.Context, oldID, newID string) error {

	for _, q := range []string{
		`update annotations set file_id=? where file_id=?`,
		`update doc_versions set file_id=? where file_id=?`,
		`update audit_log set file_id=? where file_id=?`,
		`update vector_store set file_id=? where file_id=?`,
	} {
		if _, err := r.db.ExecContext(ctx, q, newID, oldID); err != nil {
			return fmt.Errorf("failed to promote file id: %w", err)
		}
	}

	// The ocr cache key embeds the file id.
	rows, err := r.OcrByFile(ctx, oldID)
	if err != nil {
		return err
	}
	for _, rec := range rows {
		rec.FileID = newID
		if err := r.PutOcr(ctx, rec); err != nil {
			return err
		}
	}
	return r.DeleteOcrByFile(ctx, oldID)
}
