// Package migrations embeds the goose SQL migrations for the local store.
// The schema is versioned and migrations are additive-only.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
