// Package migrations embeds the goose migration files so the server
// binary can migrate the database without a separate migrations
// directory on disk.
package migrations

import "embed"

// FS holds the SQL migration files.
//
//go:embed *.sql
var FS embed.FS
