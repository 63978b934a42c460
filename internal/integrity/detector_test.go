package integrity

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/lectorium/lectorium/internal/common"
	"github.com/lectorium/lectorium/internal/repo/content"
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

func TestFingerprint_Deterministic(t *testing.T) {
	blob := bytes.Repeat([]byte("abc123"), 50_000) // ~300 KB, sparse path
	assert.Equal(t, Fingerprint(blob), Fingerprint(blob))

	small := []byte("tiny")
	assert.Equal(t, Fingerprint(small), Fingerprint(small))
}

func TestFingerprint_SensitiveToChanges(t *testing.T) {
	blob := bytes.Repeat([]byte("x"), 500_000)
	orig := Fingerprint(blob)

	// length change
	assert.NotEqual(t, orig, Fingerprint(blob[:len(blob)-1]))

	// tail change, same length
	changed := bytes.Clone(blob)
	changed[len(changed)-1] = 'y'
	assert.NotEqual(t, orig, Fingerprint(changed))

	// head change, same length
	changed = bytes.Clone(blob)
	changed[0] = 'y'
	assert.NotEqual(t, orig, Fingerprint(changed))
}

func TestFingerprint_SmallBlobFullyHashed(t *testing.T) {
	// under the sampling threshold every byte counts
	blob := bytes.Repeat([]byte("z"), 60_000)
	changed := bytes.Clone(blob)
	changed[30_000] ^= 1
	assert.NotEqual(t, Fingerprint(blob), Fingerprint(changed))
}

func TestCheck_FirstUseRecordsBaseline(t *testing.T) {
	db := setupDB(t)
	repo := content.NewSQLiteRepository(db)
	d := NewDetector(repo)
	ctx := context.Background()

	blob := []byte("document content")
	require.NoError(t, d.Check(ctx, "doc1", blob))

	rec, err := repo.GetAudit(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(blob), rec.ContentHash)

	// unchanged content keeps passing
	require.NoError(t, d.Check(ctx, "doc1", blob))
}

func TestCheck_DivergenceIsConflict(t *testing.T) {
	db := setupDB(t)
	repo := content.NewSQLiteRepository(db)
	d := NewDetector(repo)
	ctx := context.Background()

	require.NoError(t, d.Check(ctx, "doc1", []byte("original")))

	err := d.Check(ctx, "doc1", []byte("changed elsewhere"))
	assert.ErrorIs(t, err, common.ErrConflict)

	// conflict does not overwrite the baseline
	rec, err := repo.GetAudit(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, Fingerprint([]byte("original")), rec.ContentHash)
}

func TestCommit_ReplacesBaseline(t *testing.T) {
	db := setupDB(t)
	repo := content.NewSQLiteRepository(db)
	d := NewDetector(repo)
	ctx := context.Background()

	require.NoError(t, d.Check(ctx, "doc1", []byte("v1")))
	require.NoError(t, d.Commit(ctx, "doc1", []byte("v2"), 3))

	require.NoError(t, d.Check(ctx, "doc1", []byte("v2")))
	rec, err := repo.GetAudit(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.AnnotationCount)
}
