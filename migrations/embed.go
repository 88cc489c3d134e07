// Package migrations embeds the SQLite schema migrations into the binary.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql pair at its root.
//
//go:embed *.sql
var FS embed.FS
