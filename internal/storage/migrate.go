package storage

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies every pending migration in the directory
// sourceDir (a filesystem path; the file:// scheme is added here) against
// dsn using driverName ("postgres" or "sqlite3"). Chomp's own CreateTable
// calls are idempotent per-ingester DDL; RunMigrations instead covers the
// fixed operational schema (the claim audit log) that ships with the binary
// rather than being derived from a running config.
func RunMigrations(sourceDir, driverName, dsn string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", sourceDir), fmt.Sprintf("%s://%s", driverName, dsn))
	if err != nil {
		return fmt.Errorf("storage: open migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("storage: apply migrations: %w", err)
	}
	return nil
}
