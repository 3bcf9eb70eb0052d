// Package migrations embeds the goose SQL migrations for trips, item requests,
// matches and notifications. cmd/api applies them at boot when
// MIGRATE_ON_START is set; repo tests apply them in TestMain.
package migrations

import "embed"

// FS holds all *.sql migration files embedded at compile time.
// Pass this to goose.NewProvider instead of relying on a filesystem path.
//
//go:embed *.sql
var FS embed.FS
