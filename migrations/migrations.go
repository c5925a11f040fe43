// Package migrations embeds schema migration files at compile time,
// one directory per supported driver, for single-binary deployment.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
