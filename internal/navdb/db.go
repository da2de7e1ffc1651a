// Package navdb persists completed fusion runs to sqlite: one row per run,
// one row per GPS epoch of diagnostics, and one row per INS track sample.
// The schema is managed with embedded golang-migrate migrations.
package navdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the sqlite handle used by the run store.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies any pending
// migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("navdb: open %s: %w", path, err)
	}
	db := &DB{sqldb}
	if err := db.migrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// migrateUp applies all pending migrations; an already-current schema is not
// an error.
func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("navdb: load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("navdb: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("navdb: create migrate instance: %w", err)
	}
	// Closing m would close the underlying DB connection; leave it to GC.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("navdb: migration failed: %w", err)
	}
	return nil
}
