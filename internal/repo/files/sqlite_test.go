package files

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lectorium/lectorium/internal/blob"
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

func setupSideband(t *testing.T) *blob.Sideband {
	t.Helper()
	s, err := blob.Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveGet_Inline(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, nil) // no sideband: blobs stay inline
	ctx := context.Background()

	rec := &models.OfflineRecord{
		Document: models.Document{
			ID:       "remote-1",
			Name:     "paper.pdf",
			MimeType: "application/pdf",
			Parents:  []string{"folder-a"},
			Blob:     []byte("%PDF-1.7 content"),
		},
	}
	require.NoError(t, r.Save(ctx, rec))
	assert.False(t, rec.InSideband)

	got, err := r.Get(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", got.Name)
	assert.Equal(t, []string{"folder-a"}, got.Parents)
	assert.Equal(t, []byte("%PDF-1.7 content"), got.Blob)
	assert.Equal(t, int64(16), got.Size)
}

func TestSaveGet_Sideband(t *testing.T) {
	db := setupDB(t)
	sb := setupSideband(t)
	r := NewSQLiteRepository(db, sb)
	ctx := context.Background()

	rec := &models.OfflineRecord{
		Document: models.Document{ID: "remote-1", Name: "paper.pdf", Blob: []byte("content")},
	}
	require.NoError(t, r.Save(ctx, rec))
	assert.True(t, rec.InSideband)

	// the record row keeps no inline copy
	var inline []byte
	require.NoError(t, db.QueryRow(`select blob from offline_files where id='remote-1'`).Scan(&inline))
	assert.Empty(t, inline)

	got, err := r.Get(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), got.Blob)
}

func TestGet_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, nil)

	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGet_BumpsLastAccessed(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, nil)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	now = func() time.Time { return base }
	t.Cleanup(func() { now = time.Now })

	require.NoError(t, r.Save(ctx, &models.OfflineRecord{
		Document: models.Document{ID: "a", Blob: []byte("x")},
	}))

	now = func() time.Time { return base.Add(30 * time.Minute) }
	_, err := r.Get(ctx, "a")
	require.NoError(t, err)

	var ms int64
	require.NoError(t, db.QueryRow(`select last_accessed from offline_files where id='a'`).Scan(&ms))
	assert.Equal(t, base.Add(30*time.Minute).UnixMilli(), ms)
}

func TestList_ColdestFirst(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, nil)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"warm", "cold", "hot"} {
		offs := []time.Duration{-time.Hour, -2 * time.Hour, 0}[i]
		ts := base.Add(offs)
		now = func() time.Time { return ts }
		require.NoError(t, r.Save(ctx, &models.OfflineRecord{
			Document: models.Document{ID: id, Blob: []byte("x")},
		}))
	}
	t.Cleanup(func() { now = time.Now })

	recs, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "cold", recs[0].ID)
	assert.Equal(t, "warm", recs[1].ID)
	assert.Equal(t, "hot", recs[2].ID)
	// listing never loads content
	assert.Nil(t, recs[0].Blob)
}

func TestDelete_RemovesBlob(t *testing.T) {
	db := setupDB(t)
	sb := setupSideband(t)
	r := NewSQLiteRepository(db, sb)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, &models.OfflineRecord{
		Document: models.Document{ID: "a", Blob: []byte("x")},
	}))
	require.NoError(t, r.Delete(ctx, "a"))

	_, err := r.Get(ctx, "a")
	assert.ErrorIs(t, err, common.ErrNotFound)
	ids, err := sb.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.ErrorIs(t, r.Delete(ctx, "a"), common.ErrNotFound)
}

func TestPromoteID(t *testing.T) {
	db := setupDB(t)
	sb := setupSideband(t)
	r := NewSQLiteRepository(db, sb)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, &models.OfflineRecord{
		Document:    models.Document{ID: "local-1", Name: "n.pdf", Blob: []byte("x")},
		PendingSync: true,
	}))
	require.NoError(t, r.TouchRecent(ctx, &models.RecentFile{ID: "local-1", Name: "n.pdf"}))

	require.NoError(t, r.PromoteID(ctx, "local-1", "remote-9"))

	got, err := r.Get(ctx, "remote-9")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got.Blob)
	assert.False(t, got.PendingSync)

	_, err = r.Get(ctx, "local-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	// the old blob is gone, the recent entry follows the new id
	ids, err := sb.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"remote-9"}, ids)

	recents, err := r.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recents, 1)
	assert.Equal(t, "remote-9", recents[0].ID)
}

func TestInlineSize(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, nil)
	ctx := context.Background()

	total, err := r.InlineSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	require.NoError(t, r.Save(ctx, &models.OfflineRecord{Document: models.Document{ID: "a", Blob: []byte("1234")}}))
	require.NoError(t, r.Save(ctx, &models.OfflineRecord{Document: models.Document{ID: "b", Blob: []byte("56")}}))

	total, err = r.InlineSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
}

func TestRecents_MostRecentFirstCapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, nil)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, r.TouchRecent(ctx, &models.RecentFile{ID: id, Name: id, OpenedAt: ts}))
	}

	got, err := r.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestDocCache_RoundTrip(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, nil)
	ctx := context.Background()

	_, err := r.CacheGet(ctx, "remote-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, r.CachePut(ctx, "remote-1", []byte("v1")))
	b, err := r.CacheGet(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), b)

	require.NoError(t, r.CachePut(ctx, "remote-1", []byte("v2")))
	b, err = r.CacheGet(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), b)
}

func TestDocCache_PruneByAge(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db, nil)
	ctx := context.Background()

	base := time.Now()
	now = func() time.Time { return base }
	t.Cleanup(func() { now = time.Now })

	require.NoError(t, r.CachePut(ctx, "old", []byte("x")))

	now = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, r.CachePut(ctx, "fresh", []byte("y")))

	require.NoError(t, r.PruneCache(ctx, 24*time.Hour))

	_, err := r.CacheGet(ctx, "old")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = r.CacheGet(ctx, "fresh")
	assert.NoError(t, err)
}
