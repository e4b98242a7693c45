// Package migrations embeds the SQL schema applied by database.Migrate.
package migrations

import "embed"

// FS holds every *.sql migration in lexical order of file name.
//
//go:embed *.sql
var FS embed.FS
