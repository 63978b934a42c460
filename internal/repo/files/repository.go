// Package files stores offline document copies, recents and pinning.
package files

import (
	"context"
	"time"

	"github.com/lectorium/lectorium/internal/models"
)

// Repository is the typed accessor for offline copies and recents.
type Repository interface {
	// Save writes (or rewrites) the offline copy including its content.
	// When the sideband is available the blob goes there and the record
	// keeps only metadata; otherwise the blob is stored inline.
	Save(ctx context.Context, rec *models.OfflineRecord) error

	// Get returns the record with its content loaded (from the sideband
	// or inline). Bumps LastAccessed.
	Get(ctx context.Context, id string) (*models.OfflineRecord, error)

	// List returns all records without content, ordered by LastAccessed
	// ascending (coldest first).
	List(ctx context.Context) ([]*models.OfflineRecord, error)

	// Delete removes the record and its physical blob.
	Delete(ctx context.Context, id string) error

	SetPinned(ctx context.Context, id string, pinned bool) error
	SetPendingSync(ctx context.Context, id string, pending bool) error

	// PromoteID rewrites a local- placeholder id to the remote id assigned
	// on first upload, moving the sideband blob along with it.
	PromoteID(ctx context.Context, oldID, newID string) error

	// InlineSize sums the size of inline-stored content.
	InlineSize(ctx context.Context) (int64, error)

	// Download cache for remote documents opened without an offline copy.
	// Entries are best-effort and pruned by age.
	CachePut(ctx context.Context, id string, blob []byte) error
	CacheGet(ctx context.Context, id string) ([]byte, error)
	PruneCache(ctx context.Context, maxAge time.Duration) error

	// TouchRecent upserts the recency record for the file picker.
	TouchRecent(ctx context.Context, rf *models.RecentFile) error
	ListRecent(ctx context.Context, limit int) ([]*models.RecentFile, error)
}

// now is swappable in tests.
var now = time.Now

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
