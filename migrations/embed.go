// Package migrations embeds the ordered schema files so the binaries need no
// filesystem layout at deploy time.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
