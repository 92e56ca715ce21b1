// Package storage persists per-session bookmarks, saved timestamp formats,
// and recently opened sources in a SQLite database. The engine itself never
// depends on it for correctness; it is the durable side of session state.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite handle. Thread-safe: sql.DB pools connections.
type Store struct {
	db *sql.DB
}

// Open opens or creates a database at path, creating parent directories as
// needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// OpenInMemory creates an in-memory database, useful for testing.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS bookmarks (
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (session_id, position)
		);
		CREATE TABLE IF NOT EXISTS formats (
			session_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			spec TEXT NOT NULL,
			PRIMARY KEY (session_id, ordinal)
		);
		CREATE TABLE IF NOT EXISTS recent_sources (
			description TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			last_used TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveBookmarks replaces the stored bookmark set of a session.
func (s *Store) SaveBookmarks(ctx context.Context, sessionID string, positions []int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear bookmarks: %w", err)
	}
	for _, pos := range positions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bookmarks (session_id, position) VALUES (?, ?)`, sessionID, pos); err != nil {
			return fmt.Errorf("failed to insert bookmark %d: %w", pos, err)
		}
	}
	return tx.Commit()
}

// LoadBookmarks returns the stored bookmark positions of a session sorted
// ascending.
func (s *Store) LoadBookmarks(ctx context.Context, sessionID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position FROM bookmarks WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarks: %w", err)
	}
	defer rows.Close()

	var positions []int
	for rows.Next() {
		var pos int
		if err := rows.Scan(&pos); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// SaveFormats replaces the stored format specs of a session, order kept.
func (s *Store) SaveFormats(ctx context.Context, sessionID string, specs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM formats WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear formats: %w", err)
	}
	for i, spec := range specs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO formats (session_id, ordinal, spec) VALUES (?, ?, ?)`, sessionID, i, spec); err != nil {
			return fmt.Errorf("failed to insert format %q: %w", spec, err)
		}
	}
	return tx.Commit()
}

// LoadFormats returns the stored format specs of a session in saved order.
func (s *Store) LoadFormats(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT spec FROM formats WHERE session_id = ? ORDER BY ordinal`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query formats: %w", err)
	}
	defer rows.Close()

	var specs []string
	for rows.Next() {
		var spec string
		if err := rows.Scan(&spec); err != nil {
			return nil, fmt.Errorf("failed to scan format: %w", err)
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// TouchRecentSource records that a source was opened now.
func (s *Store) TouchRecentSource(ctx context.Context, description, kind string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recent_sources (description, kind, last_used) VALUES (?, ?, ?)
		ON CONFLICT(description) DO UPDATE SET last_used = excluded.last_used`,
		description, kind, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record recent source: %w", err)
	}
	return nil
}

// RecentSource is one remembered ingestion origin.
type RecentSource struct {
	Description string
	Kind        string
	LastUsed    time.Time
}

// RecentSources returns up to limit sources, most recent first.
func (s *Store) RecentSources(ctx context.Context, limit int) ([]RecentSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT description, kind, last_used FROM recent_sources ORDER BY last_used DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent sources: %w", err)
	}
	defer rows.Close()

	var out []RecentSource
	for rows.Next() {
		var rs RecentSource
		var lastUsed string
		if err := rows.Scan(&rs.Description, &rs.Kind, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan recent source: %w", err)
		}
		rs.LastUsed, _ = time.Parse(time.RFC3339, lastUsed)
		out = append(out, rs)
	}
	return out, rows.Err()
}
