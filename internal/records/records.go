// Package records persists the last-known content hash of every backed up
// file in a single SQLite table.
package records

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/backupsync/internal/db"
	"github.com/openmined/backupsync/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    directory_path TEXT NOT NULL,
    file_path TEXT NOT NULL UNIQUE,
    hash_value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_directory_path ON records(directory_path);
`

var (
	ErrNotFound    = errors.New("record not found")
	ErrStoreClosed = errors.New("record store not open")
	ErrStoreOpen   = errors.New("record store already open")
	ErrStoreLocked = errors.New("record store is locked by another process")
	ErrUnavailable = errors.New("record store unavailable")
	ErrEmptyDBPath = errors.New("record store path is empty")
)

// Record is one tracked source file.
type Record struct {
	ID            int64  `db:"id"`
	DirectoryPath string `db:"directory_path"`
	FilePath      string `db:"file_path"`
	HashValue     string `db:"hash_value"`
}

// Store is the SQLite backed record table. Every method is a single
// committed statement and safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	db     *sqlx.DB
	dbPath string
	lock   *flock.Flock
}

// NewStore returns a store for dbPath. Call Open before use. ":memory:" gives
// a throwaway in-memory store without an instance lock.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, ErrEmptyDBPath
	}
	s := &Store{dbPath: dbPath}
	if dbPath != db.InMemory {
		s.lock = flock.New(dbPath + ".lock")
	}
	return s, nil
}

// Open takes the instance lock, connects and creates the schema if missing.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return ErrStoreOpen
	}

	if s.lock != nil {
		if err := utils.EnsureParent(s.dbPath); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
		locked, err := s.lock.TryLock()
		if err != nil {
			return fmt.Errorf("lock record store: %w", err)
		}
		if !locked {
			return ErrStoreLocked
		}
	}

	// one connection: sqlite has a single writer anyway and this keeps
	// concurrent workers from tripping over SQLITE_BUSY
	conn, err := db.NewSqliteDB(db.WithPath(s.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		s.unlock()
		return fmt.Errorf("open record store: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		s.unlock()
		return fmt.Errorf("initialize record schema: %w", err)
	}

	s.db = conn
	slog.Debug("record store open", "path", s.dbPath)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrStoreClosed
	}
	err := s.db.Close()
	s.db = nil
	s.unlock()
	if err != nil {
		slog.Error("record store close", "error", err)
		return err
	}
	slog.Debug("record store closed")
	return nil
}

func (s *Store) unlock() {
	if s.lock == nil || !s.lock.Locked() {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		slog.Warn("record store unlock", "path", s.lock.Path(), "error", err)
		return
	}
	os.Remove(s.lock.Path())
}

func (s *Store) conn() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ErrStoreClosed)
	}
	return s.db, nil
}

// Exists reports whether a record for filePath is present.
func (s *Store) Exists(filePath string) (bool, error) {
	conn, err := s.conn()
	if err != nil {
		return false, err
	}
	var count int
	if err := conn.Get(&count, "SELECT COUNT(*) FROM records WHERE file_path = ?", filePath); err != nil {
		return false, fmt.Errorf("%w: exists %s: %w", ErrUnavailable, filePath, err)
	}
	return count > 0, nil
}

// Upsert inserts the record, or updates directory and hash of the existing one.
func (s *Store) Upsert(directoryPath, filePath, hashValue string) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	query := `INSERT INTO records (directory_path, file_path, hash_value)
	          VALUES (:directory_path, :file_path, :hash_value)
	          ON CONFLICT(file_path) DO UPDATE SET
	              directory_path = excluded.directory_path,
	              hash_value = excluded.hash_value`
	_, err = conn.NamedExec(query, Record{
		DirectoryPath: directoryPath,
		FilePath:      filePath,
		HashValue:     hashValue,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %w", ErrUnavailable, filePath, err)
	}
	slog.Debug("record upsert", "dir", directoryPath, "path", filePath, "hash", hashValue)
	return nil
}

// GetHash returns the stored hash or ErrNotFound.
func (s *Store) GetHash(filePath string) (string, error) {
	conn, err := s.conn()
	if err != nil {
		return "", err
	}
	var hash string
	err = conn.Get(&hash, "SELECT hash_value FROM records WHERE file_path = ?", filePath)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filePath)
	}
	if err != nil {
		return "", fmt.Errorf("%w: get hash %s: %w", ErrUnavailable, filePath, err)
	}
	return hash, nil
}

// ListFiles returns the file paths recorded for directoryPath, compared
// verbatim. Order is unspecified.
func (s *Store) ListFiles(directoryPath string) ([]string, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	paths := []string{}
	if err := conn.Select(&paths, "SELECT file_path FROM records WHERE directory_path = ?", directoryPath); err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrUnavailable, directoryPath, err)
	}
	return paths, nil
}

// Remove deletes the record for filePath. Absent records are not an error.
func (s *Store) Remove(filePath string) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := conn.Exec("DELETE FROM records WHERE file_path = ?", filePath); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrUnavailable, filePath, err)
	}
	slog.Debug("record remove", "path", filePath)
	return nil
}

func (s *Store) Count() (int, error) {
	conn, err := s.conn()
	if err != nil {
		return 0, err
	}
	var count int
	if err := conn.Get(&count, "SELECT COUNT(*) FROM records"); err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrUnavailable, err)
	}
	return count, nil
}
