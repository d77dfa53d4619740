// Package db opens SQLite databases used for backup metadata.
package db

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/backupsync/internal/utils"
)

// InMemory is the path of a private in-memory database.
const InMemory = ":memory:"

// WAL keeps readers from blocking the single writer. busy_timeout covers the
// short window where another connection still holds the write lock.
var defaultPragmas = []string{
	"journal_mode=WAL",
	"busy_timeout=5000",
	"synchronous=NORMAL",
	"temp_store=MEMORY",
	"cache_size=2000",
}

type options struct {
	path         string
	pragmas      []string
	maxOpenConns int
}

type SqliteOption func(*options)

// WithPath sets the database file, its parent directory is created on open.
func WithPath(path string) SqliteOption {
	return func(o *options) { o.path = path }
}

// WithPragmas replaces the default pragmas. Each entry is the part after
// PRAGMA, for example "foreign_keys=ON".
func WithPragmas(pragmas ...string) SqliteOption {
	return func(o *options) { o.pragmas = pragmas }
}

// WithMaxOpenConns caps open connections. In-memory databases need 1, every
// new connection would otherwise see its own empty database.
func WithMaxOpenConns(n int) SqliteOption {
	return func(o *options) { o.maxOpenConns = n }
}

func dsnFor(path string) string {
	if path == InMemory {
		return InMemory
	}
	return fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", path)
}

// NewSqliteDB connects to SQLite and applies the pragmas in order.
func NewSqliteDB(opts ...SqliteOption) (*sqlx.DB, error) {
	o := &options{path: InMemory, pragmas: defaultPragmas}
	for _, opt := range opts {
		opt(o)
	}

	if o.path != InMemory {
		if err := utils.EnsureParent(o.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
	}

	slog.Debug("db open", "driver", driverID, "path", o.path)
	conn, err := sqlx.Connect(driverName, dsnFor(o.path))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if o.maxOpenConns > 0 {
		conn.SetMaxOpenConns(o.maxOpenConns)
	}

	for _, pragma := range o.pragmas {
		if _, err := conn.Exec("PRAGMA " + pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}

	return conn, nil
}
