// Package migrations embeds the SQL schema migration files.
package migrations

import "embed"

// FS contains the SQL migration files, applied in lexical filename order.
//
//go:embed *.sql
var FS embed.FS
