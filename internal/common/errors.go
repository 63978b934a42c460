// Package common defines shared constants and sentinel errors used across
// the sync engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Integrity: remote content diverged from the last verified baseline.
	// Never auto-merged; requires explicit resolution.
	ErrConflict = errors.New("content conflict")

	// Remote store error classes. The save orchestrator routes on these.
	ErrUnauthorized = errors.New("unauthorized")
	ErrPermission   = errors.New("permission denied")
	ErrTransient    = errors.New("transient failure")

	// Codec error classes.
	ErrPasswordRequired = errors.New("password required")
	ErrProtected        = errors.New("document protected, cannot burn")
	ErrCorrupt          = errors.New("document corrupt")

	// Lock held by another saver; the save is deferred, not failed.
	ErrLocked = errors.New("document locked")
)
