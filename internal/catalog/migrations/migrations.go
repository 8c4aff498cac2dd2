// Package migrations embeds the catalog schema, one directory per goose dialect.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite3/*.sql
var Migrations embed.FS
