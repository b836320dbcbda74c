package store

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (serialized tags column only)
// 1 - Added event_tags, backfilled from the serialized tags column
const currentSchemaVersion = 1

// maxReadConns bounds the read pool. WAL lets readers proceed while the
// single writer holds its lock.
const maxReadConns = 4

// ErrNotFound is returned when no event has the requested id.
var ErrNotFound = errors.New("event not found")

// Store provides durable storage for relay events.
// Uses SQLite with WAL mode; one connection writes, a small pool reads.
type Store struct {
	db     *sqlx.DB // writer, exactly one connection
	reader *sqlx.DB
}

// Open opens the relay database at path, creating it if needed, and brings
// its schema up to date.
//
// The writer connection runs in WAL mode with synchronous=NORMAL, a 5s busy
// timeout and foreign keys on. Readers share the same file through their own
// pool, so queries never wait behind the ingest loop's connection.
//
// Opening an existing database again is safe.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	reader, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	reader.SetMaxOpenConns(maxReadConns)
	reader.SetMaxIdleConns(maxReadConns)

	return &Store{db: db, reader: reader}, nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	var errs []error
	if s.reader != nil {
		errs = append(errs, s.reader.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sqlx.DB) error {
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

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sqlx.DB) error {
	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 decomposes the serialized tags column into event_tags for
// databases written before tag predicates stopped scanning the tags text.
// New databases have no rows yet, so this is a no-op for them.
func migrateToV1(db *sqlx.DB) error {
	_, err := db.Exec(`
		INSERT INTO event_tags (event_id, name, value)
		SELECT e.id, json_extract(t.value, '$[0]'), json_extract(t.value, '$[1]')
		FROM events e, json_each(e.tags) t
		WHERE json_array_length(t.value) >= 2
		  AND length(json_extract(t.value, '$[0]')) = 1
		  AND NOT EXISTS (SELECT 1 FROM event_tags x WHERE x.event_id = e.id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
