// Package sqlite is the durable Storage backend, grounded in the
// teacher's internal/storage/ephemeral/store.go: a pure-Go SQLite driver,
// a single busy-timeout/WAL/foreign-keys DSN, and MaxOpenConns(1) to
// avoid SQLITE_BUSY under CTT's mostly-serial write pattern.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/NCAR/ctt-server/internal/storage"
)

// Store is a SQLite-backed storage.Storage.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (if needed) and opens the database at dbPath, applying the
// schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w\nSQL: %s", err, stmt)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// wrapDBError maps sql.ErrNoRows to storage.ErrNotFound; other errors pass
// through wrapped with context.
func wrapDBError(context string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s: %w", context, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", context, err)
}
