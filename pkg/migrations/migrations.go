// Package migrations embeds the SQL migration files applied to Postgres at
// startup, and via the migrate subcommands.
package migrations

import "embed"

// Dir is the directory within FS containing the migration files.
const Dir = "sql"

// FS holds every up and down migration, named in the form expected by
// golang-migrate: <timestamp>_<name>.<up|down>.sql
//
//go:embed sql/*.sql
var FS embed.FS
