package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "sources", "proj")
	require.NoError(t, os.MkdirAll(src, 0o755))
	return &Config{
		DirectoriesPaths:    []string{src},
		BackupDirectoryPath: filepath.Join(root, "backup"),
		IntervalInSeconds:   5,
		DatabasePath:        filepath.Join(root, "storage.db"),
		LogFilePath:         filepath.Join(root, "logs.log"),
	}
}

func TestValidate(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Interval())
	assert.Equal(t, DefaultDebounceMillis*time.Millisecond, cfg.WatchDebounce())
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig(t)
	cfg.DatabasePath = ""
	cfg.LogFilePath = ""
	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.DatabasePath))
	assert.Equal(t, DefaultDatabasePath, filepath.Base(cfg.DatabasePath))
	assert.Equal(t, DefaultLogFilePath, filepath.Base(cfg.LogFilePath))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		err    error
	}{
		{name: "no directories", mutate: func(c *Config) { c.DirectoriesPaths = nil }, err: ErrNoDirectories},
		{name: "no backup", mutate: func(c *Config) { c.BackupDirectoryPath = "" }, err: ErrNoBackupDirectory},
		{name: "zero interval", mutate: func(c *Config) { c.IntervalInSeconds = 0 }, err: ErrInvalidInterval},
		{name: "negative cache", mutate: func(c *Config) { c.HashCacheSize = -1 }, err: ErrNegativeOption},
		{name: "missing source", mutate: func(c *Config) { c.DirectoriesPaths = []string{"/definitely/not/here"} }, err: ErrSourceNotDirectory},
		{name: "duplicate", mutate: func(c *Config) {
			c.DirectoriesPaths = append(c.DirectoriesPaths, c.DirectoriesPaths[0]+string(filepath.Separator))
		}, err: ErrDuplicateDirectory},
		{name: "backup is source", mutate: func(c *Config) { c.BackupDirectoryPath = c.DirectoriesPaths[0] }, err: ErrBackupIsSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.err)
		})
	}
}

func TestExpandDirectories(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"one", "two", "three"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "src", d), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "file.txt"), []byte("x"), 0o644))

	dirs, err := ExpandDirectories([]string{filepath.Join(root, "src", "*"), "/plain/kept"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "src", "one"),
		filepath.Join(root, "src", "three"),
		filepath.Join(root, "src", "two"),
		"/plain/kept",
	}, dirs)

	_, err = ExpandDirectories([]string{filepath.Join(root, "src", "*"), filepath.Join(root, "src", "one")})
	assert.ErrorIs(t, err, ErrDuplicateDirectory)

	_, err = ExpandDirectories([]string{filepath.Join(root, "nothing", "*")})
	assert.ErrorIs(t, err, ErrNoDirectories)
}
