package models

import "time"

// SyncAction is the reconciliation intent recorded in the durable queue.
type SyncAction string

const (
	SyncActionCreate SyncAction = "create"
	SyncActionUpdate SyncAction = "update"
)

// SyncQueueItem is a durable intent to reconcile a local-only change with the
// remote store once connectivity and authorization permit. Items are drained
// oldest-first by CreatedAt.
type SyncQueueItem struct {
	ID        int64
	FileID    string
	Action    SyncAction
	Blob      []byte
	Name      string
	MimeType  string
	Parents   []string
	CreatedAt time.Time
}

// Lock is a cooperative, TTL-bounded advisory lock on a document id.
// A lock older than LockTTL is abandoned and may be stolen.
type Lock struct {
	ID        string
	Timestamp time.Time
}

// LockTTL is how long a held lock is honored before it may be stolen.
// Keeps a crashed writer from permanently wedging a document.
const LockTTL = 60 * time.Second
