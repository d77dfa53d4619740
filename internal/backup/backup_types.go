package backup

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openmined/backupsync/internal/catalog"
)

var (
	ErrUnknownDirectory = errors.New("directory is not configured")
	ErrNoDirectories    = errors.New("no directories configured")
	ErrMissingComponent = errors.New("engine component not set")
)

// errSkipped marks a per-file failure that only skips the file for this cycle.
var errSkipped = errors.New("file skipped")

// Store is the metadata store: last known hash of every tracked file.
type Store interface {
	Exists(filePath string) (bool, error)
	Upsert(directoryPath, filePath, hashValue string) error
	GetHash(filePath string) (string, error)
	ListFiles(directoryPath string) ([]string, error)
	Remove(filePath string) error
}

// Mirror places copies of source files in the backup tree.
type Mirror interface {
	Root() string
	BackupPathFor(directoryPath, filePath string) string
	CopyToBackup(directoryPath, filePath string) (int64, error)
	ExistsInBackup(directoryPath, filePath string) bool
	RemoveFromBackup(directoryPath, filePath string) error
}

type Hasher interface {
	Hash(filePath string) (string, error)
}

type Messages interface {
	Get(key catalog.Key, args ...any) string
}

type loggerKey struct{}

func withLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
