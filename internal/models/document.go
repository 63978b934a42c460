// Package models defines the data types persisted by the sync engine.
package models

import (
	"strings"
	"time"
)

// Id prefixes for documents that have not yet been promoted to the remote
// store. A save of such a document issues an upload (create) rather than an
// update, and the id is rewritten to the remote id on success.
const (
	LocalIDPrefix  = "local-"
	NativeIDPrefix = "native-"
)

// Document is a logical document, remote-addressable or local-only.
type Document struct {
	// ID is the remote store id, or a local-/native- prefixed placeholder
	// until the document is first synced.
	ID string

	// Name is the user-visible file name.
	Name string

	// MimeType of the content blob.
	MimeType string

	// Parents is a containment hint for remote placement (folder ids).
	Parents []string

	// Blob is the raw content. May be nil when content lives elsewhere.
	Blob []byte

	// Pinned exempts the document's offline copy from eviction.
	Pinned bool
}

// IsLocalOnly reports whether the document has not been promoted to the
// remote store yet.
func (d *Document) IsLocalOnly() bool {
	return IsLocalID(d.ID)
}

// IsLocalID reports whether id is a not-yet-promoted placeholder.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix) || strings.HasPrefix(id, NativeIDPrefix)
}

// OfflineRecord is a Document held in the local store. When the content blob
// lives in the sideband, Blob is empty — content has exactly one physical
// home.
type OfflineRecord struct {
	Document

	// StoredAt is when the offline copy was first written.
	StoredAt time.Time

	// LastAccessed is bumped on every read; the janitor evicts oldest first.
	LastAccessed time.Time

	// Size is the content length in bytes, kept even when the blob itself
	// is in the sideband, so storage pressure can be estimated cheaply.
	Size int64

	// InSideband marks the blob as living in the sideband file sink.
	InSideband bool

	// PendingSync marks a local copy that has not been confirmed remote.
	PendingSync bool
}

// RecentFile is a lightweight recency record for the file picker.
type RecentFile struct {
	ID       string
	Name     string
	MimeType string
	OpenedAt time.Time
}
