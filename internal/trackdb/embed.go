package trackdb

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// DevMode switches getMigrationsFS to read migrations from the working tree
// instead of the binary. Set from the -dev flag at startup.
var DevMode bool

//go:embed migrations
var migrationsFS embed.FS

// getMigrationsFS returns the filesystem rooted at the migration files. In
// production this is the embedded copy, so a deployed binary carries its own
// schema history; in dev mode the local directory is used so migrations can be
// edited without rebuilding.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		dir := "internal/trackdb/migrations"
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("dev mode migrations directory not found: %w", err)
		}
		return os.DirFS(dir), nil
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	return sub, nil
}
