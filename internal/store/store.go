package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

//go:embed indexes.sql
var indexesSQL string

// Schema version tracking:
// 1 - Initial schema (subjects without owner_id/pending_op)
// 2 - Added nullable owner_id and pending_op columns to subjects
// 3 - Added attempts column to assessments
const currentSchemaVersion = 3

// ErrNotFound is returned when a row lookup by primary key matches nothing.
var ErrNotFound = errors.New("store: row not found")

// Store is the durable local entity cache.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db  *sql.DB
	obs *observers
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, obs: newObservers()}, nil
}

// Close cancels all live observation streams and closes the database.
func (s *Store) Close() error {
	if s.obs != nil {
		s.obs.closeAll()
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist, runs migrations, then
// creates indexes. This function is idempotent.
//
// Migrations must run between the two statements: on an old database the
// CREATE TABLE IF NOT EXISTS statements no-op against the existing tables,
// and the partial indexes reference columns only the migrations add.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if _, err := db.Exec(indexesSQL); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
// All migrations are additive (ALTER TABLE ADD COLUMN) so pre-existing rows
// survive the upgrade.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}
	if version < 3 {
		if err := migrateToV3(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV2 adds the nullable owner_id and pending_op columns to a
// pre-existing subjects table. Databases created from the current schema.sql
// already have them, so each column is checked before altering.
func migrateToV2(db *sql.DB) error {
	for _, col := range []string{"owner_id", "pending_op"} {
		ok, err := hasColumn(db, "subjects", col)
		if err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
		if ok {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE subjects ADD COLUMN %s TEXT", col)); err != nil {
			return fmt.Errorf("migrate to v2: add %s: %w", col, err)
		}
	}
	return nil
}

// migrateToV3 adds the attempts column to a pre-existing assessments table.
func migrateToV3(db *sql.DB) error {
	ok, err := hasColumn(db, "assessments", "attempts")
	if err != nil {
		return fmt.Errorf("migrate to v3: %w", err)
	}
	if ok {
		return nil
	}
	if _, err := db.Exec("ALTER TABLE assessments ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("migrate to v3: add attempts: %w", err)
	}
	return nil
}

// hasColumn reports whether a table already has the named column.
func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
