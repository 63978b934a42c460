// Package remote is the client for the remote document store. The engine
// treats it as a black-box RPC surface: download, upload, update, rename.
// Failures are classified into the common error taxonomy so the save
// orchestrator can route on them.
package remote

import "context"

// Store is the remote document store RPC surface.
type Store interface {
	// Download fetches a document's bytes.
	Download(ctx context.Context, id string) ([]byte, error)

	// Upload creates a new remote document and returns its assigned id.
	Upload(ctx context.Context, blob []byte, name string, parents []string, mimeType string) (string, error)

	// Update replaces an existing document's content.
	Update(ctx context.Context, id string, blob []byte, mimeType string) error

	// Rename changes a document's name without touching content.
	Rename(ctx context.Context, id string, name string) error
}

// Prober answers whether the remote store is currently reachable.
type Prober interface {
	Online(ctx context.Context) bool
}
