package files

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lectorium/lectorium/internal/blob"
	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/dbx"
	"github.com/lectorium/lectorium/internal/models"
)

type SQLiteRepository struct {
	db       dbx.DBTX
	sideband *blob.Sideband
}

func NewSQLiteRepository(db dbx.DBTX, sideband *blob.Sideband) *SQLiteRepository {
	return &SQLiteRepository{db: db, sideband: sideband}
}

func marshalParents(parents []string) string {
	if parents == nil {
		parents = []string{}
	}
	b, _ := json.Marshal(parents)
	return string(b)
}

func unmarshalParents(s string) []string {
	var parents []string
	if err := json.Unmarshal([]byte(s), &parents); err != nil {
		return nil
	}
	return parents
}

func (r *SQLiteRepository) Save(ctx context.Context, rec *models.OfflineRecord) error {

	inline := rec.Blob
	rec.Size = int64(len(rec.Blob))
	rec.InSideband = false

	// Sideband blob is written before the record commits, so a crash never
	// leaves a record pointing at a missing blob.
	if r.sideband.Available() {
		if err := r.sideband.Put(rec.ID, rec.Blob); err != nil {
			return fmt.Errorf("failed to store blob: %w", err)
		}
		inline = nil
		rec.InSideband = true
	}

	if rec.StoredAt.IsZero() {
		rec.StoredAt = now()
	}
	if rec.LastAccessed.IsZero() {
		rec.LastAccessed = now()
	}

	query := `INSERT INTO offline_files (id, name, mime_type, parents, blob, pinned, stored_at, last_accessed, size, in_sideband, pending_sync)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name,
				mime_type = excluded.mime_type,
				parents = excluded.parents,
				blob = excluded.blob,
				pinned = excluded.pinned,
				last_accessed = excluded.last_accessed,
				size = excluded.size,
				in_sideband = excluded.in_sideband,
				pending_sync = excluded.pending_sync
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.MimeType, marshalParents(rec.Parents), inline,
		rec.Pinned, rec.StoredAt.UnixMilli(), rec.LastAccessed.UnixMilli(),
		rec.Size, rec.InSideband, rec.PendingSync)
	if err != nil {
		return fmt.Errorf("failed to upsert offline file: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) scanRecord(row *sql.Row) (*models.OfflineRecord, error) {
	var rec models.OfflineRecord
	var parents string
	var inline []byte
	var storedAt, lastAccessed int64

	err := row.Scan(&rec.ID, &rec.Name, &rec.MimeType, &parents, &inline,
		&rec.Pinned, &storedAt, &lastAccessed, &rec.Size, &rec.InSideband, &rec.PendingSync)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan offline file: %w", err)
	}

	rec.Parents = unmarshalParents(parents)
	rec.Blob = inline
	rec.StoredAt = fromMillis(storedAt)
	rec.LastAccessed = fromMillis(lastAccessed)
	return &rec, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.OfflineRecord, error) {

	query := `select id, name, mime_type, parents, blob, pinned, stored_at, last_accessed, size, in_sideband, pending_sync
			from offline_files where id=?`
	rec, err := r.scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if rec.InSideband {
		b, err := r.sideband.Get(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load sideband blob: %w", err)
		}
		rec.Blob = b
	}

	if err := r.touch(ctx, id); err != nil {
		return nil, err
	}
	rec.LastAccessed = now()

	return rec, nil
}

func (r *SQLiteRepository) touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `update offline_files set last_accessed=? where id=?`, now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to touch offline file: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.OfflineRecord, error) {

	query := `select id, name, mime_type, parents, pinned, stored_at, last_accessed, size, in_sideband, pending_sync
			from offline_files order by last_accessed asc`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list offline files: %w", err)
	}
	defer rows.Close()

	var result []*models.OfflineRecord
	for rows.Next() {
		var rec models.OfflineRecord
		var parents string
		var storedAt, lastAccessed int64
		err := rows.Scan(&rec.ID, &rec.Name, &rec.MimeType, &parents,
			&rec.Pinned, &storedAt, &lastAccessed, &rec.Size, &rec.InSideband, &rec.PendingSync)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offline file: %w", err)
		}
		rec.Parents = unmarshalParents(parents)
		rec.StoredAt = fromMillis(storedAt)
		rec.LastAccessed = fromMillis(lastAccessed)
		result = append(result, &rec)
	}

	return result, rows.Err()
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {

	var inSideband bool
	err := r.db.QueryRowContext(ctx, `select in_sideband from offline_files where id=?`, id).Scan(&inSideband)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read offline file: %w", err)
	}

	if inSideband {
		if err := r.sideband.Delete(id); err != nil {
			return err
		}
	}

	if _, err := r.db.ExecContext(ctx, `delete from offline_files where id=?`, id); err != nil {
		return fmt.Errorf("failed to delete offline file: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetPinned(ctx context.Context, id string, pinned bool) error {
	_, err := r.db.ExecContext(ctx, `update offline_files set pinned=? where id=?`, pinned, id)
	if err != nil {
		return fmt.Errorf("failed to set pinned: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetPendingSync(ctx context.Context, id string, pending bool) error {
	_, err := r.db.ExecContext(ctx, `update offline_files set pending_sync=? where id=?`, pending, id)
	if err != nil {
		return fmt.Errorf("failed to set pending sync: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PromoteID(ctx context.Context, oldID, newID string) error {

	var inSideband bool
	err := r.db.QueryRowContext(ctx, `select in_sideband from offline_files where id=?`, oldID).Scan(&inSideband)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read offline file: %w", err)
	}

	// New blob first, record rewrite second, old blob last: at no point does
	// the record reference a blob that does not exist.
	if inSideband {
		b, err := r.sideband.Get(oldID)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err == nil {
			if err := r.sideband.Put(newID, b); err != nil {
				return err
			}
		}
	}

	rewrite := func(ctx context.Context, db dbx.DBTX) error {
		if _, err := db.ExecContext(ctx, `update offline_files set id=?, pending_sync=0 where id=?`, newID, oldID); err != nil {
			return fmt.Errorf("failed to promote id: %w", err)
		}
		if _, err := db.ExecContext(ctx, `update recent_files set id=? where id=?`, newID, oldID); err != nil {
			return fmt.Errorf("failed to promote recent id: %w", err)
		}
		return nil
	}
	if db, ok := r.db.(*sql.DB); ok {
		err = dbx.WithTx(ctx, db, nil, rewrite)
	} else {
		err = rewrite(ctx, r.db)
	}
	if err != nil {
		return err
	}

	if inSideband {
		if err := r.sideband.Delete(oldID); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) InlineSize(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx, `select sum(size) from offline_files where in_sideband=0`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum inline size: %w", err)
	}
	return total.Int64, nil
}

func (r *SQLiteRepository) CachePut(ctx context.Context, id string, blob []byte) error {
	query := `INSERT INTO doc_cache (id, blob, cached_at) values (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET blob = excluded.blob, cached_at = excluded.cached_at`
	_, err := r.db.ExecContext(ctx, query, id, blob, now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to cache document: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CacheGet(ctx context.Context, id string) ([]byte, error) {
	var b []byte
	err := r.db.QueryRowContext(ctx, `select blob from doc_cache where id=?`, id).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached document: %w", err)
	}
	return b, nil
}

// PruneCache drops cached downloads older than maxAge.
func (r *SQLiteRepository) PruneCache(ctx context.Context, maxAge time.Duration) error {
	cutoff := now().Add(-maxAge).UnixMilli()
	_, err := r.db.ExecContext(ctx, `delete from doc_cache where cached_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune document cache: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) TouchRecent(ctx context.Context, rf *models.RecentFile) error {

	if rf.OpenedAt.IsZero() {
		rf.OpenedAt = now()
	}

	query := `INSERT INTO recent_files (id, name, mime_type, opened_at)
			values (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name,
				mime_type = excluded.mime_type,
				opened_at = excluded.opened_at
	`
	_, err := r.db.ExecContext(ctx, query, rf.ID, rf.Name, rf.MimeType, rf.OpenedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert recent file: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]*models.RecentFile, error) {

	rows, err := r.db.QueryContext(ctx,
		`select id, name, mime_type, opened_at from recent_files order by opened_at desc limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent files: %w", err)
	}
	defer rows.Close()

	var result []*models.RecentFile
	for rows.Next() {
		var rf models.RecentFile
		var openedAt int64
		if err := rows.Scan(&rf.ID, &rf.Name, &rf.MimeType, &openedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recent file: %w", err)
		}
		rf.OpenedAt = fromMillis(openedAt)
		result = append(result, &rf)
	}

	return result, rows.Err()
}
