// Package settings stores cooperative locks, the durable sync queue and
// tagged device preferences.
package settings

import (
	"context"
	"time"

	"github.com/lectorium/lectorium/internal/models"
)

// Repository is the typed accessor for locks, the sync queue and settings.
type Repository interface {
	// AcquireLock takes the advisory lock for a document id. A lock older
	// than models.LockTTL is abandoned and stolen. Returns common.ErrLocked
	// while a fresh lock is held by someone else.
	AcquireLock(ctx context.Context, id string) error
	ReleaseLock(ctx context.Context, id string) error

	// Enqueue appends a durable reconciliation intent.
	Enqueue(ctx context.Context, item *models.SyncQueueItem) error
	// PendingQueue returns items oldest-first.
	PendingQueue(ctx context.Context) ([]*models.SyncQueueItem, error)
	// Dequeue removes a completed item.
	Dequeue(ctx context.Context, id int64) error
	QueueLen(ctx context.Context) (int, error)

	// Tagged settings variants.
	PutSetting(ctx context.Context, key string, kind models.SettingKind, value any) error
	GetSetting(ctx context.Context, key string, out any) (models.SettingKind, error)
}

// now is swappable in tests (lock TTL expiry).
var now = time.Now
