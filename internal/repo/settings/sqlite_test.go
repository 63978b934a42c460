package settings

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/models"
	"github.com/lectorium/lectorium/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st.DB()
}

func TestAcquireLock_HeldAndReleased(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.AcquireLock(ctx, "doc1"))
	assert.ErrorIs(t, r.AcquireLock(ctx, "doc1"), common.ErrLocked)

	// a different document is unaffected
	require.NoError(t, r.AcquireLock(ctx, "doc2"))

	require.NoError(t, r.ReleaseLock(ctx, "doc1"))
	require.NoError(t, r.AcquireLock(ctx, "doc1"))
}

func TestAcquireLock_StaleIsStolen(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Now()
	now = func() time.Time { return base }
	t.Cleanup(func() { now = time.Now })

	require.NoError(t, r.AcquireLock(ctx, "doc1"))

	// just inside the TTL the lock still holds
	now = func() time.Time { return base.Add(models.LockTTL - time.Second) }
	assert.ErrorIs(t, r.AcquireLock(ctx, "doc1"), common.ErrLocked)

	// past the TTL it is abandoned and stolen
	now = func() time.Time { return base.Add(models.LockTTL) }
	require.NoError(t, r.AcquireLock(ctx, "doc1"))

	// the steal refreshed the timestamp
	now = func() time.Time { return base.Add(models.LockTTL + time.Second) }
	assert.ErrorIs(t, r.AcquireLock(ctx, "doc1"), common.ErrLocked)
}

func TestQueue_FIFO(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, r.Enqueue(ctx, &models.SyncQueueItem{
			FileID:    id,
			Action:    models.SyncActionCreate,
			Blob:      []byte{byte(i)},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	n, err := r.QueueLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := r.PendingQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "first", items[0].FileID)
	assert.Equal(t, "second", items[1].FileID)
	assert.Equal(t, "third", items[2].FileID)

	require.NoError(t, r.Dequeue(ctx, items[0].ID))
	items, err = r.PendingQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].FileID)
}

func TestQueue_SupersedesPriorIntent(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, &models.SyncQueueItem{
		FileID: "local-1", Action: models.SyncActionCreate, Blob: []byte("v1"), Name: "doc.pdf",
	}))
	require.NoError(t, r.Enqueue(ctx, &models.SyncQueueItem{
		FileID: "local-1", Action: models.SyncActionCreate, Blob: []byte("v2"), Name: "doc.pdf",
	}))
	require.NoError(t, r.Enqueue(ctx, &models.SyncQueueItem{
		FileID: "remote-9", Action: models.SyncActionUpdate, Blob: []byte("other"),
	}))

	// one row per file: the second enqueue replaced the first
	n, err := r.QueueLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := r.PendingQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		if it.FileID == "local-1" {
			assert.Equal(t, []byte("v2"), it.Blob)
			assert.Equal(t, models.SyncActionCreate, it.Action)
		}
	}
}

func TestQueue_ItemRoundTrip(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	in := &models.SyncQueueItem{
		FileID:   "local-1",
		Action:   models.SyncActionUpdate,
		Blob:     []byte("payload"),
		Name:     "doc.pdf",
		MimeType: "application/pdf",
		Parents:  []string{"folder-a", "folder-b"},
	}
	require.NoError(t, r.Enqueue(ctx, in))
	assert.NotZero(t, in.ID)

	items, err := r.PendingQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	got := items[0]
	assert.Equal(t, models.SyncActionUpdate, got.Action)
	assert.Equal(t, []byte("payload"), got.Blob)
	assert.Equal(t, []string{"folder-a", "folder-b"}, got.Parents)
}

func TestSettings_TaggedVariants(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	type wallpaper struct {
		Path string `json:"path"`
	}
	require.NoError(t, r.PutSetting(ctx, "ui.wallpaper", models.SettingWallpaper, wallpaper{Path: "/tmp/bg.png"}))

	var out wallpaper
	kind, err := r.GetSetting(ctx, "ui.wallpaper", &out)
	require.NoError(t, err)
	assert.Equal(t, models.SettingWallpaper, kind)
	assert.Equal(t, "/tmp/bg.png", out.Path)

	_, err = r.GetSetting(ctx, "missing", nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
