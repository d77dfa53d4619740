// Package mirror maps source files onto the backup tree and performs the
// copy and remove operations on it.
package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/backupsync/internal/utils"
)

type Mirror struct {
	root string
}

func New(backupRoot string) *Mirror {
	return &Mirror{root: backupRoot}
}

func (m *Mirror) Root() string {
	return m.root
}

// BackupDirFor returns the backup folder of a source directory. The folder is
// named after the last component of the directory's parent, so
// /data/sources/proj maps to <root>/sources. A trailing separator makes the
// directory its own parent (/data/sources/proj/ maps to <root>/proj).
func (m *Mirror) BackupDirFor(directoryPath string) string {
	name := filepath.Base(filepath.Dir(directoryPath))
	if name == "." || name == string(filepath.Separator) {
		return m.root
	}
	return filepath.Join(m.root, name)
}

// BackupPathFor returns where filePath is copied to.
func (m *Mirror) BackupPathFor(directoryPath, filePath string) string {
	return filepath.Join(m.BackupDirFor(directoryPath), filepath.Base(filePath))
}

// CopyToBackup copies filePath into the directory's backup folder, creating
// it when missing and overwriting an existing copy.
func (m *Mirror) CopyToBackup(directoryPath, filePath string) (int64, error) {
	dst := m.BackupPathFor(directoryPath, filePath)
	if err := utils.EnsureDir(filepath.Dir(dst)); err != nil {
		return 0, fmt.Errorf("create backup directory: %w", err)
	}
	n, err := utils.CopyFile(filePath, dst)
	if err != nil {
		return n, fmt.Errorf("copy %s to %s: %w", filePath, dst, err)
	}
	slog.Debug("backup copy", "src", filePath, "dst", dst, "bytes", n)
	return n, nil
}

// ExistsInBackup reports whether a regular file sits at the backup path.
// Anything else there (a directory, fifo or device) is not a backup copy and
// must never be opened for hashing.
func (m *Mirror) ExistsInBackup(directoryPath, filePath string) bool {
	regular, err := utils.IsRegularFile(m.BackupPathFor(directoryPath, filePath))
	return err == nil && regular
}

// RemoveFromBackup deletes the backup copy. A copy that is already gone is not an error.
func (m *Mirror) RemoveFromBackup(directoryPath, filePath string) error {
	dst := m.BackupPathFor(directoryPath, filePath)
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove backup %s: %w", dst, err)
	}
	return nil
}
