package settings

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

// AcquireLock takes the named lock. A holder within LockTTL keeps it; a
// stale one is stolen. The conditional upsert decides in one statement.
func (r *SQLiteRepository) AcquireLock(ctx context.Context, id string) error {

	query := `INSERT INTO locks (id, ts) values (?, ?)
			ON CONFLICT(id) DO UPDATE SET ts = excluded.ts
			WHERE excluded.ts - locks.ts >= ?`
	res, err := r.db.ExecContext(ctx, query, id, now().UnixMilli(), models.LockTTL.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if n == 0 {
		return common.ErrLocked
	}
	return nil
}

func (r *SQLiteRepository) ReleaseLock(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `delete from locks where id=?`, id); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Enqueue records pending remote intent for a file. An earlier queued item
// for the same file is superseded: each item carries the full blob, so the
// latest one subsumes everything before it.
func (r *SQLiteRepository) Enqueue(ctx context.Context, item *models.SyncQueueItem) error {

	if item.CreatedAt.IsZero() {
		item.CreatedAt = now()
	}
	parents, err := json.Marshal(item.Parents)
	if err != nil {
		return fmt.Errorf("failed to marshal parents: %w", err)
	}

	if db, ok := r.db.(*sql.DB); ok {
		return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return enqueue(ctx, tx, item, parents)
		})
	}
	return enqueue(ctx, r.db, item, parents)
}

func enqueue(ctx context.Context, db dbx.DBTX, item *models.SyncQueueItem, parents []byte) error {
	if _, err := db.ExecContext(ctx, `delete from sync_queue where file_id=?`, item.FileID); err != nil {
		return fmt.Errorf("failed to supersede queued item: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`insert into sync_queue (file_id, action, blob, name, mime_type, parents, created_at)
		 values (?, ?, ?, ?, ?, ?, ?)`,
		item.FileID, string(item.Action), item.Blob, item.Name, item.MimeType, parents, item.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	item.ID, _ = res.LastInsertId()
	return nil
}

func (r *SQLiteRepository) PendingQueue(ctx context.Context) ([]*models.SyncQueueItem, error) {

	rows, err := r.db.QueryContext(ctx,
		`select id, file_id, action, blob, name, mime_type, parents, created_at
		 from sync_queue order by created_at asc, id asc`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		var action, parents string
		var createdAt int64
		if err := rows.Scan(&item.ID, &item.FileID, &action, &item.Blob, &item.Name,
			&item.MimeType, &parents, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.Action = models.SyncAction(action)
		item.CreatedAt = time.UnixMilli(createdAt)
		if err := json.Unmarshal([]byte(parents), &item.Parents); err != nil {
			item.Parents = nil
		}
		result = append(result, &item)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) Dequeue(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `delete from sync_queue where id=?`, id); err != nil {
		return fmt.Errorf("failed to dequeue: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) QueueLen(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `select count(*) from sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) PutSetting(ctx context.Context, key string, kind models.SettingKind, value any) error {

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal setting: %w", err)
	}

	query := `INSERT INTO settings (key, kind, value) values (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value`
	if _, err := r.db.ExecContext(ctx, query, key, string(kind), data); err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSetting(ctx context.Context, key string, out any) (models.SettingKind, error) {

	var kind string
	var data []byte
	err := r.db.QueryRowContext(ctx, `select kind, value from settings where key=?`, key).Scan(&kind, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return "", fmt.Errorf("failed to unmarshal setting: %w", err)
		}
	}
	return models.SettingKind(kind), nil
}
