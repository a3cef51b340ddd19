// Package store persists tool enablement and the call log in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/soyeahso/crewdesk/internal/logging"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// DB is a migrated SQLite handle shared by the tool state store and the call log.
type DB struct {
	sql  *sql.DB
	path string
	log  *logging.Logger
}

// Open opens or creates the database at path and brings its schema up to date.
func Open(path string, log *logging.Logger) (*DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if path == MemoryPath {
		// each pooled connection would see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	db := &DB{sql: sqlDB, path: path, log: log.Sub("store")}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Debug().Str("path", path).Msg("database opened")
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	db.log.Debug().Str("path", db.path).Msg("closing database")
	return db.sql.Close()
}

func (db *DB) migrate() error {
	if _, err := db.sql.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.appliedVersions()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) appliedVersions() (map[int]bool, error) {
	rows, err := db.sql.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("listing migrations: %w", err)
		}
		out[v] = true
	}
	return out, rows.Err()
}

// apply runs one migration and records it in the same transaction.
func (db *DB) apply(m migration) error {
	db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

	tx, err := db.sql.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("recording migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion() (int, error) {
	var v sql.NullInt64
	if err := db.sql.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return int(v.Int64), nil
}
