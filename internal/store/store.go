package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"

	"github.com/openvital/vitalstore/internal/plan"
)

//go:embed schema.sql
var schemaSQL string

// Store owns the SQLite connection and the durability boundary. All
// mutations go through RunAsTransaction; engines plan, the store
// commits.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates or opens the database at the given path, applies the
// required pragmas and the shared schema. Idempotent - safe to call on
// an existing database.
//
// The connection is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// SQLite supports one writer at a time; the pool is pinned to a single
// connection so concurrent units of work serialize instead of failing
// with SQLITE_BUSY.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, log: logger.With("component", "store")}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries. Prefer the
// transaction primitives when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ApplyTables executes CREATE TABLE plans, typically the record tables
// rendered from registry descriptors at startup.
func (s *Store) ApplyTables(ctx context.Context, plans []plan.CreateTable) error {
	for _, p := range plans {
		if _, err := s.db.ExecContext(ctx, p.SQL()); err != nil {
			return fmt.Errorf("failed to create table %s: %w", p.Table, err)
		}
	}
	return nil
}

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

// IsUniqueViolation reports whether err is a SQLite UNIQUE (or primary
// key) constraint failure. The upsert engine uses this to turn an
// identity collision into a targeted update.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
