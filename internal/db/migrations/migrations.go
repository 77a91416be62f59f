// Package migrations embeds the warehouse schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
