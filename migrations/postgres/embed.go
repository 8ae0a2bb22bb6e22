// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contains the Postgres migrations, ordered by filename prefix.
//
//go:embed *.sql
var FS embed.FS
