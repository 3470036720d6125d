package apikey

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this plugin
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
