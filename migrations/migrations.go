// Package migrations carries the schema history compiled into the binary so
// the runner does not depend on the working directory at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
