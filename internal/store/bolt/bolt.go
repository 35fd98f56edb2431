// Package bolt opens and wraps the bbolt file that backs one database.
package bolt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrBlocked is returned when another handle holds the file lock for longer
// than the open timeout.
var ErrBlocked = errors.New("database file is locked by another connection")

// Options tune how the file is opened.
type Options struct {
	// Timeout bounds the wait for the file lock. Zero waits forever.
	Timeout time.Duration
	// NoSync skips fsync after each commit. Only for tests and scratch data.
	NoSync bool
}

// Store wraps a bbolt database (embedded B+ tree) file.
type Store struct {
	path string
	db   *bolt.DB
}

// Open creates or opens a bbolt database at the given path, creating parent
// directories as needed.
func Open(path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: opts.Timeout, NoSync: opts.NoSync})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("opening bolt db %s: %w", path, ErrBlocked)
	}
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

// Path returns the file path.
func (s *Store) Path() string {
	return s.path
}

// View runs fn in a read-only transaction.
func (s *Store) View(fn func(tx *bolt.Tx) error) error {
	return s.db.View(fn)
}

// Update runs fn in a read-write transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) Update(fn func(tx *bolt.Tx) error) error {
	return s.db.Update(fn)
}

// Begin starts a manual transaction. The caller must Rollback (read-only) or
// Commit/Rollback (writable) it.
func (s *Store) Begin(writable bool) (*bolt.Tx, error) {
	return s.db.Begin(writable)
}

// Stats returns the engine counters.
func (s *Store) Stats() bolt.Stats {
	return s.db.Stats()
}

// Close releases the file. It waits for open read transactions to finish.
func (s *Store) Close() error {
	return s.db.Close()
}

// Remove deletes the database file at path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing bolt db: %w", err)
	}
	return nil
}
