// Package state provides the processed-state store shared by the master and
// every worker of a run. It records which tables have been seen and which are
// done, and is the only source of truth for dependency gating.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/dbsmedya/gofkdump/internal/logger"
)

const dropTableSQL = `DROP TABLE IF EXISTS processed_tables`

const createTableSQL = `
CREATE TABLE IF NOT EXISTS processed_tables (
	name TEXT PRIMARY KEY,
	is_processed INTEGER NOT NULL DEFAULT 0
)`

const markSeenSQL = `INSERT INTO processed_tables (name, is_processed) VALUES (?, 0) ON CONFLICT(name) DO NOTHING`

const markDoneSQL = `INSERT INTO processed_tables (name, is_processed) VALUES (?, 1) ON CONFLICT(name) DO UPDATE SET is_processed = 1`


// Store is a processed-state store backed by an embedded SQLite file. Every
// call goes to the database; nothing is cached in process.
type Store struct {
	db     *sql.DB
	path   string
	logger *logger.Logger
}

// Open opens (creating if needed) the store file at path and ensures the
// table exists.
func Open(ctx context.Context, path string, log *logger.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	// WAL lets readers run while a worker writes; busy_timeout waits on locks
	// instead of failing immediately.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s, err := New(db, path, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := s.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an already opened database handle. path is the file removed by
// Destroy and may be empty.
func New(db *sql.DB, path string, log *logger.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Store{db: db, path: path, logger: log}, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Initialize creates the processed_tables table if it doesn't exist.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create processed_tables table: %w", err)
	}
	return nil
}

// Reset wipes all state from a previous run.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, dropTableSQL); err != nil {
		return fmt.Errorf("failed to drop processed_tables table: %w", err)
	}
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	s.logger.Debugw("State store reset", "path", s.path)
	return nil
}

// MarkSeen reports whether table already had a record. When it didn't, a
// record with is_processed = 0 is created. Only one of several racing callers
// can observe false.
func (s *Store) MarkSeen(ctx context.Context, table string) (bool, error) {
	res, err := s.db.ExecContext(ctx, markSeenSQL, table)
	if err != nil {
		return false, fmt.Errorf("failed to mark table %s as seen: %w", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for table %s: %w", table, err)
	}
	return affected == 0, nil
}

// MarkDone sets is_processed for table. Calling it again has no further effect.
func (s *Store) MarkDone(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, markDoneSQL, table); err != nil {
		return fmt.Errorf("failed to mark table %s as done: %w", table, err)
	}
	return nil
}

// CountSatisfied returns how many of names are marked done. Duplicate names
// count once and an empty set returns 0 without a query.
func (s *Store) CountSatisfied(ctx context.Context, names []string) (int, error) {
	unique := dedupe(names)
	if len(unique) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(unique)), ",")
	query := "SELECT COUNT(*) FROM processed_tables WHERE is_processed = 1 AND name IN (" + placeholders + ")"

	args := make([]interface{}, len(unique))
	for i, n := range unique {
		args[i] = n
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processed tables: %w", err)
	}
	return count, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Destroy closes the store and removes its file along with the WAL and shared
// memory side files.
func (s *Store) Destroy() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close state store: %w", err)
	}
	if s.path == "" {
		return nil
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove state file %s: %w", p, err)
		}
	}
	s.logger.Debugw("State store removed", "path", s.path)
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
