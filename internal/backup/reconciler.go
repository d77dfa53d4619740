package backup

import (
	"context"
	"errors"
	"os"

	"github.com/openmined/backupsync/internal/catalog"
)

// ReconcileResult counts what a deleted-file pass did.
type ReconcileResult struct {
	Directory string
	Checked   int
	Removed   int
	Dangling  int
	Pruned    int
	Skipped   int
}

// ReconcileDirectory removes the backup copy and the record of every file
// recorded for directoryPath that no longer exists at the source. It holds
// the same lock as ScanDirectory. A record without a backup copy is left in
// place unless pruning of dangling records is enabled.
func (e *Engine) ReconcileDirectory(ctx context.Context, directoryPath string) (*ReconcileResult, error) {
	l, err := e.locks.get(directoryPath)
	if err != nil {
		return nil, err
	}
	return e.reconcileWithLock(ctx, l, directoryPath)
}

func (e *Engine) reconcileWithLock(ctx context.Context, l *dirLock, dir string) (*ReconcileResult, error) {
	l.lock()
	defer l.unlock()

	logger := loggerFrom(ctx).With("dir", dir)

	files, err := e.store.ListFiles(dir)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Directory: dir}
	for _, filePath := range files {
		result.Checked++

		info, err := os.Stat(filePath)
		if err == nil {
			if !info.Mode().IsRegular() {
				// the scanner no longer visits it, the record and copy stay until it is a file again
				logger.Warn("tracked path is not a regular file", "path", filePath, "mode", info.Mode().Type().String())
				result.Skipped++
			}
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("stat failed", "path", filePath, "error", err)
			result.Skipped++
			continue
		}

		if !e.mirror.ExistsInBackup(dir, filePath) {
			if !e.pruneDangled {
				logger.Warn("record has no source and no backup copy", "path", filePath, "state", StateDeleted)
				result.Dangling++
				continue
			}
			if err := e.store.Remove(filePath); err != nil {
				return result, err
			}
			logger.Info("dangling record pruned", "path", filePath)
			result.Pruned++
			continue
		}

		if err := e.mirror.RemoveFromBackup(dir, filePath); err != nil {
			logger.Error("remove backup failed", "path", filePath, "error", err)
			result.Skipped++
			continue
		}
		if err := e.store.Remove(filePath); err != nil {
			return result, err
		}
		logger.Info(e.messages.Get(catalog.FileRemoved, "file_path", filePath), "state", StateDeleted)
		result.Removed++
	}

	return result, nil
}
