package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.txt")
	dst := filepath.Join(root, "out", "nested", "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello backup"), 0o640))

	n, err := CopyFile(src, dst)
	require.NoError(t, err)
	assert.EqualValues(t, len("hello backup"), n)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello backup", string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	}
}

func TestCopyFileOverwrites(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.txt")
	dst := filepath.Join(root, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old and longer"), 0o644))

	_, err := CopyFile(src, dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	// no temp files left behind
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCopyFileMissingSource(t *testing.T) {
	root := t.TempDir()
	dst := filepath.Join(root, "dst.txt")
	require.NoError(t, os.WriteFile(dst, []byte("keep"), 0o644))

	_, err := CopyFile(filepath.Join(root, "missing"), dst)
	assert.ErrorIs(t, err, os.ErrNotExist)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}
