// Package assets holds the files compiled into the binaries: SQL migrations, email templates and the common passwords list.
package assets

import "embed"

const (
	MigrationsDir       = "migrations"
	CommonPasswordsFile = "common-passwords.txt.gz"
)

//go:embed migrations/*.sql templates/email/* common-passwords.txt.gz
var FS embed.FS
