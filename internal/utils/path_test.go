package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name      string
		input     string
		want      string
		wantError bool
	}{
		{name: "empty path", input: "", wantError: true},
		{name: "absolute path", input: "/tmp/test/../backup", want: filepath.Clean("/tmp/backup")},
		{name: "home", input: "~", want: home},
		{name: "home child", input: "~/sources", want: filepath.Join(home, "sources")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestResolvePathRelative(t *testing.T) {
	result, err := ResolvePath("./relative")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(result))
}

func TestEnsureDirAndExists(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")

	require.NoError(t, EnsureDir(nested))
	assert.True(t, DirExists(nested))

	file := filepath.Join(nested, "f.txt")
	require.NoError(t, EnsureParent(file))
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.False(t, DirExists(file))

	regular, err := IsRegularFile(file)
	require.NoError(t, err)
	assert.True(t, regular)

	regular, err = IsRegularFile(nested)
	require.NoError(t, err)
	assert.False(t, regular)

	_, err = IsRegularFile(filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
