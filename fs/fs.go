// Package appfs embeds the static files the binaries need at runtime:
// database migrations, email templates and the common passwords list.
package appfs

import "embed"

//go:embed migrations/*.sql all:templates common-passwords.txt.gz
var FS embed.FS
