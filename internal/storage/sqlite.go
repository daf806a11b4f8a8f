// Package storage persists question observations into SQLite. One Store
// instance is owned by a single store worker; nothing else touches the
// database while a run is in progress.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/YesIKnowIT/SODump/internal/extract"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// Entry is one element of a write batch: the outcome of processing one
// capture, with the records it yielded when extraction succeeded.
type Entry struct {
	Key     string
	Status  extract.Status
	Records []extract.Record
}

// Store wraps the SQLite database holding sources, views, tags, aliases
// and schema metadata.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs the forward-only
// migration chain.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection prevents lock conflicts between statements of
	// one batch.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 600000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return s.migrate()
}

// migrate walks the migration chain until the stored version marker
// reaches the current schema version.
func (s *Store) migrate() error {
	for {
		version, err := s.Version()
		if err != nil {
			return err
		}
		if version == schemaVersion {
			return nil
		}
		if version > schemaVersion || version < 0 {
			return fmt.Errorf("unsupported schema version %d", version)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration: %w", err)
		}
		if _, err := tx.Exec(migrations[version]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration v%d -> v%d failed: %w", version, version+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration: %w", err)
		}
	}
}

// Version returns the schema version recorded in the meta table.
func (s *Store) Version() (int, error) {
	value, err := s.GetMeta("version")
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, errors.New("no schema version marker")
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("bad schema version %q: %w", value, err)
	}
	return version, nil
}

// GetMeta retrieves a metadata value; missing keys yield "".
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta(key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

// Exists reports whether key has already been processed successfully.
// Rows with a non-OK status count as absent so the capture is retried.
// A lookup follows at most one alias hop.
func (s *Store) Exists(key string) (bool, error) {
	ok, found, err := s.status(key)
	if err != nil {
		return false, err
	}
	if found {
		return ok, nil
	}

	var target string
	err = s.db.QueryRow("SELECT target FROM aliases WHERE path = ?", key).Scan(&target)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve alias: %w", err)
	}

	ok, _, err = s.status(target)
	return ok, err
}

func (s *Store) status(key string) (ok, found bool, err error) {
	var status string
	err = s.db.QueryRow("SELECT status FROM sources WHERE path = ?", key).Scan(&status)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to query source: %w", err)
	}
	return status == string(extract.StatusOK), true, nil
}

// AddAlias records that path redirects to target.
func (s *Store) AddAlias(path, target string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO aliases(path, target) VALUES (?, ?)", path, target)
	if err != nil {
		return fmt.Errorf("failed to add alias: %w", err)
	}
	return nil
}

// Write applies one batch in a single transaction. Re-inserting a record
// that is already present is a no-op, so committing the same batch twice
// leaves the row counts unchanged. On any failure the whole batch rolls
// back; partial writes are never visible.
func (s *Store) Write(batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	srcStmt, err := tx.Prepare("INSERT OR REPLACE INTO sources(path, status) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare sources statement: %w", err)
	}
	defer func() { _ = srcStmt.Close() }()

	viewStmt, err := tx.Prepare("INSERT OR IGNORE INTO views(question, date, viewcount) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare views statement: %w", err)
	}
	defer func() { _ = viewStmt.Close() }()

	tagStmt, err := tx.Prepare("INSERT OR IGNORE INTO tags(question, tag) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare tags statement: %w", err)
	}
	defer func() { _ = tagStmt.Close() }()

	for _, entry := range batch {
		if _, err := srcStmt.Exec(entry.Key, string(entry.Status)); err != nil {
			return fmt.Errorf("failed to insert source %s: %w", entry.Key, err)
		}
		for _, rec := range entry.Records {
			if _, err := viewStmt.Exec(rec.ID, rec.Date, rec.ViewCount); err != nil {
				return fmt.Errorf("failed to insert views for %s: %w", rec.ID, err)
			}
			for _, tag := range rec.Tags {
				if _, err := tagStmt.Exec(rec.ID, tag); err != nil {
					return fmt.Errorf("failed to insert tag %s: %w", tag, err)
				}
			}
		}
	}

	return tx.Commit()
}

// ForEachView streams all view observations ordered by capture date,
// for export.
func (s *Store) ForEachView(fn func(date, question string, viewcount int) error) error {
	rows, err := s.db.Query("SELECT date, question, viewcount FROM views ORDER BY date, question")
	if err != nil {
		return fmt.Errorf("failed to query views: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var date, question string
		var viewcount int
		if err := rows.Scan(&date, &question, &viewcount); err != nil {
			return fmt.Errorf("failed to scan view row: %w", err)
		}
		if err := fn(date, question, viewcount); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountSources returns how many sources rows exist, for progress
// reporting.
func (s *Store) CountSources() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sources").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
