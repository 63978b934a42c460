package janitor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lectorium/lectorium/internal/blob"
	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/logging"
	"github.com/lectorium/lectorium/internal/models"
	"github.com/lectorium/lectorium/internal/repo/content"
	"github.com/lectorium/lectorium/internal/repo/files"
	"github.com/lectorium/lectorium/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fixture struct {
	jan      *Janitor
	files    files.Repository
	content  content.Repository
	sideband *blob.Sideband
}

func setup(t *testing.T, limit int64, headroom float64) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sideband, err := blob.Open(t.TempDir())
	require.NoError(t, err)

	filesRepo := files.NewSQLiteRepository(st.DB(), sideband)
	contentRepo := content.NewSQLiteRepository(st.DB())

	jan := New(filesRepo, contentRepo, sideband, limit, headroom, time.Minute, testLogger())
	return &fixture{
		jan:      jan,
		files:    filesRepo,
		content:  contentRepo,
		sideband: sideband,
	}
}

// save stores a record of exactly size bytes. Records saved later are warmer.
func save(t *testing.T, f *fixture, id string, size int) {
	t.Helper()
	require.NoError(t, f.files.Save(context.Background(), &models.OfflineRecord{
		Document: models.Document{
			ID:   id,
			Name: id + ".pdf",
			Blob: bytes.Repeat([]byte("x"), size),
		},
	}))
}

func TestUsage(t *testing.T) {
	f := setup(t, 1000, 0.1)
	ctx := context.Background()

	save(t, f, "doc-a", 100)
	save(t, f, "doc-b", 250)

	usage, err := f.jan.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(350), usage)
}

func TestSweep_UnderLimitEvictsNothing(t *testing.T) {
	f := setup(t, 1000, 0.1)
	ctx := context.Background()

	save(t, f, "doc-a", 100)
	save(t, f, "doc-b", 100)

	require.NoError(t, f.jan.Sweep(ctx))

	recs, err := f.files.List(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSweep_EvictsColdestFirst(t *testing.T) {
	// limit 150, headroom 20% -> evict down to 120
	f := setup(t, 150, 0.2)
	ctx := context.Background()

	save(t, f, "doc-cold", 100)
	save(t, f, "doc-mid", 100)
	save(t, f, "doc-warm", 100)

	require.NoError(t, f.jan.Sweep(ctx))

	// 300 -> 200 -> 100, stopping once under the target
	_, err := f.files.Get(ctx, "doc-cold")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.files.Get(ctx, "doc-mid")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.files.Get(ctx, "doc-warm")
	assert.NoError(t, err)
}

func TestSweep_AccessKeepsWarm(t *testing.T) {
	f := setup(t, 150, 0.2)
	ctx := context.Background()

	save(t, f, "doc-a", 100)
	save(t, f, "doc-b", 100)
	save(t, f, "doc-c", 100)

	// reading doc-a makes it the warmest
	_, err := f.files.Get(ctx, "doc-a")
	require.NoError(t, err)

	require.NoError(t, f.jan.Sweep(ctx))

	_, err = f.files.Get(ctx, "doc-a")
	assert.NoError(t, err)
	_, err = f.files.Get(ctx, "doc-b")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSweep_SkipsPinnedAndPending(t *testing.T) {
	f := setup(t, 150, 0.2)
	ctx := context.Background()

	save(t, f, "doc-pinned", 100)
	save(t, f, "doc-pending", 100)
	save(t, f, "doc-plain", 100)
	require.NoError(t, f.files.SetPinned(ctx, "doc-pinned", true))
	require.NoError(t, f.files.SetPendingSync(ctx, "doc-pending", true))

	require.NoError(t, f.jan.Sweep(ctx))

	// only the unprotected copy was evictable, even though usage is
	// still over target afterwards
	_, err := f.files.Get(ctx, "doc-pinned")
	assert.NoError(t, err)
	_, err = f.files.Get(ctx, "doc-pending")
	assert.NoError(t, err)
	_, err = f.files.Get(ctx, "doc-plain")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSweep_CascadeKeepsAuditBaseline(t *testing.T) {
	f := setup(t, 50, 0.2)
	ctx := context.Background()

	save(t, f, "doc-a", 100)
	require.NoError(t, f.content.PutOcr(ctx, &models.OcrRecord{
		FileID: "doc-a", Page: 1,
		Words: []models.OcrWord{{Text: "hello"}},
	}))
	require.NoError(t, f.content.AddVersion(ctx, &models.DocVersion{ID: "v-1", FileID: "doc-a", Content: []byte("old")}))
	require.NoError(t, f.content.UpsertAudit(ctx, &models.AuditRecord{FileID: "doc-a", ContentHash: 42, AnnotationCount: 1}))

	require.NoError(t, f.jan.Sweep(ctx))

	_, err := f.files.Get(ctx, "doc-a")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.content.GetOcr(ctx, "doc-a", 1)
	assert.ErrorIs(t, err, common.ErrNotFound)
	versions, err := f.content.VersionsByFile(ctx, "doc-a")
	require.NoError(t, err)
	assert.Empty(t, versions)

	// a later re-download is still checked against the old baseline
	audit, err := f.content.GetAudit(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), audit.ContentHash)
}

func TestSweep_KeepsFreshDownloadCache(t *testing.T) {
	f := setup(t, 1000, 0.1)
	ctx := context.Background()

	require.NoError(t, f.files.CachePut(ctx, "remote-1", []byte("cached")))

	require.NoError(t, f.jan.Sweep(ctx))

	b, err := f.files.CacheGet(ctx, "remote-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), b)
}

func TestSweep_DeletesOrphanBlobs(t *testing.T) {
	f := setup(t, 1000, 0.1)
	ctx := context.Background()

	save(t, f, "doc-a", 100)
	require.NoError(t, f.sideband.Put("doc-gone", []byte("leftover")))

	require.NoError(t, f.jan.Sweep(ctx))

	_, err := f.sideband.Get("doc-gone")
	assert.Error(t, err)

	// the referenced blob survives
	rec, err := f.files.Get(ctx, "doc-a")
	require.NoError(t, err)
	assert.Len(t, rec.Blob, 100)
}
