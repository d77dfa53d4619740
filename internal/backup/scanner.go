package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/backupsync/internal/catalog"
	"github.com/openmined/backupsync/internal/records"
	"github.com/openmined/backupsync/internal/utils"
)

// ScanResult counts the classification of every file in one scan.
type ScanResult struct {
	Directory   string
	Added       int
	Restored    int
	Changed     int
	Unchanged   int
	Skipped     int
	Ignored     int
	BytesCopied int64
}

func (r *ScanResult) count(state FileState) {
	switch state {
	case StateUntracked:
		r.Added++
	case StateMissingBackup:
		r.Restored++
	case StateChanged:
		r.Changed++
	case StateUnchanged:
		r.Unchanged++
	}
}

// ScanDirectory blocks until it holds the directory lock and then classifies
// every regular file directly inside directoryPath. Per-file I/O failures skip
// the file; a store failure aborts the scan.
func (e *Engine) ScanDirectory(ctx context.Context, directoryPath string) (*ScanResult, error) {
	l, err := e.locks.get(directoryPath)
	if err != nil {
		return nil, err
	}
	return e.scanWithLock(ctx, l, directoryPath)
}

func (e *Engine) scanWithLock(ctx context.Context, l *dirLock, dir string) (*ScanResult, error) {
	l.lock()
	defer l.unlock()

	logger := loggerFrom(ctx).With("dir", dir)
	logger.Info(e.messages.Get(catalog.StartDirectoryScanning, "directory_path", dir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	result := &ScanResult{Directory: dir}
	for _, entry := range entries {
		if e.ignore.MatchesPath(entry.Name()) {
			result.Ignored++
			continue
		}

		filePath := filepath.Join(dir, entry.Name())
		regular, err := utils.IsRegularFile(filePath)
		if err != nil {
			logger.Warn("stat failed", "path", filePath, "error", err)
			result.Skipped++
			continue
		}
		if !regular {
			continue
		}

		state, n, err := e.scanFile(logger, dir, filePath)
		if errors.Is(err, errSkipped) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}
		result.count(state)
		result.BytesCopied += n
	}

	return result, nil
}

func (e *Engine) scanFile(logger *slog.Logger, dir, filePath string) (FileState, int64, error) {
	tracked, err := e.store.Exists(filePath)
	if err != nil {
		return 0, 0, err
	}
	if !tracked {
		logger.Info(e.messages.Get(catalog.FileNotExistsInStore, "file_path", filePath))
		return e.backupFile(logger, StateUntracked, dir, filePath, "")
	}

	logger.Debug(e.messages.Get(catalog.FileAlreadyExistsInStore, "file_path", filePath))

	if !e.mirror.ExistsInBackup(dir, filePath) {
		logger.Info(e.messages.Get(catalog.FileNotExistsInBackup, "file_path", filePath))
		return e.backupFile(logger, StateMissingBackup, dir, filePath, "")
	}

	stored, err := e.store.GetHash(filePath)
	if errors.Is(err, records.ErrNotFound) {
		logger.Warn("record vanished during scan", "path", filePath)
		return 0, 0, errSkipped
	}
	if err != nil {
		return 0, 0, err
	}

	source, err := e.hasher.Hash(filePath)
	if err != nil {
		logger.Warn("hash source failed", "path", filePath, "error", err)
		return 0, 0, errSkipped
	}

	backupPath := e.mirror.BackupPathFor(dir, filePath)
	backup, err := e.hasher.Hash(backupPath)
	if err != nil {
		logger.Warn("hash backup failed", "path", backupPath, "error", err)
		return 0, 0, errSkipped
	}

	if hashesAgree(stored, source, backup) {
		return StateUnchanged, 0, nil
	}

	logger.Info(e.messages.Get(catalog.FileHashHasChanged, "file_path", filePath))
	return e.backupFile(logger, StateChanged, dir, filePath, source)
}

// backupFile copies the file and then records its hash. The record is only
// written once the copy exists, so a failed copy leaves the file to be tried
// again next cycle. hash may be passed in when the caller already computed it.
func (e *Engine) backupFile(logger *slog.Logger, state FileState, dir, filePath, hash string) (FileState, int64, error) {
	if hash == "" {
		var err error
		if hash, err = e.hasher.Hash(filePath); err != nil {
			logger.Warn("hash source failed", "path", filePath, "error", err)
			return state, 0, errSkipped
		}
	}

	n, err := e.mirror.CopyToBackup(dir, filePath)
	if err != nil {
		logger.Error("backup copy failed", "path", filePath, "state", state, "error", err)
		return state, 0, errSkipped
	}

	if err := e.store.Upsert(dir, filePath, hash); err != nil {
		return state, n, err
	}

	logger.Debug("file backed up", "path", filePath, "state", state, "hash", hash)
	return state, n, nil
}
