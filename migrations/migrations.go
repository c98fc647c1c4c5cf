// Package migrations embeds the database schema and seed files.
package migrations

import "embed"

// Files holds sql/*.up.sql, sql/*.down.sql and seeds/*.sql.
//
//go:embed sql/*.sql seeds/*.sql
var Files embed.FS

const (
	MigrationsDir = "sql"
	SeedsDir      = "seeds"
)
