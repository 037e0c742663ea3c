// Package migrations holds the schema of the client cache.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
