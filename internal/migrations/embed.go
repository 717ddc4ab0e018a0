package migrations

import "embed"

// FS holds one directory of migration files per database dialect. The
// directory names double as the migration path argument at startup.
//
//go:embed *
var FS embed.FS
