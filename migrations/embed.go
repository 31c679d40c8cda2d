// Package migrations embeds the snapshot store's SQL migration files,
// so schema setup works regardless of the host's working directory.
package migrations

import "embed"

// FS holds every .sql file in this directory, applied in name order.
//
//go:embed *.sql
var FS embed.FS
