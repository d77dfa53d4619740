package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src over dst, creating dst's parent directories. The copy is
// written to a temporary file in the destination directory and renamed into
// place, so a failed copy never truncates an existing dst. The source
// permission bits are kept. It returns the number of bytes copied.
func CopyFile(src, dst string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return 0, err
	}

	dstDir := filepath.Dir(dst)
	if err := EnsureDir(dstDir); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dstDir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, srcFile)
	if err != nil {
		cleanup()
		return n, fmt.Errorf("copy content: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		cleanup()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return n, err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return n, err
	}
	return n, nil
}
