// Package migrations embeds the versioned SQL migration files applied by
// the database package at startup.
package migrations

import "embed"

// FS contains the SQL migration files.
//
//go:embed *.sql
var FS embed.FS
