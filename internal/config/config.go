package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/backupsync/internal/utils"
)

const (
	DefaultConfigPath     = "config.json"
	DefaultDatabasePath   = "storage.db"
	DefaultLogFilePath    = "logs.log"
	DefaultInterval       = 60
	DefaultMinFreeBytes   = 64 << 20
	DefaultDebounceMillis = 500
)

var (
	ErrNoDirectories      = errors.New("`directories_paths` is empty")
	ErrNoBackupDirectory  = errors.New("`backup_directory_path` is empty")
	ErrInvalidInterval    = errors.New("`interval_in_seconds` must be at least 1")
	ErrDuplicateDirectory = errors.New("directory listed more than once")
	ErrSourceNotDirectory = errors.New("source is not a directory")
	ErrBackupIsSource     = errors.New("backup directory is also a source directory")
	ErrNegativeOption     = errors.New("option must not be negative")
)

type Config struct {
	DirectoriesPaths     []string `json:"directories_paths" mapstructure:"directories_paths"`
	BackupDirectoryPath  string   `json:"backup_directory_path" mapstructure:"backup_directory_path"`
	IntervalInSeconds    int      `json:"interval_in_seconds" mapstructure:"interval_in_seconds"`
	LanguagePath         string   `json:"language_path" mapstructure:"language_path"`
	DatabasePath         string   `json:"database_path" mapstructure:"database_path"`
	LogFilePath          string   `json:"log_file_path" mapstructure:"log_file_path"`
	IgnorePatterns       []string `json:"ignore_patterns,omitempty" mapstructure:"ignore_patterns"`
	Watch                bool     `json:"watch,omitempty" mapstructure:"watch"`
	WatchDebounceMillis  int      `json:"watch_debounce_ms,omitempty" mapstructure:"watch_debounce_ms"`
	HashCacheSize        int      `json:"hash_cache_size,omitempty" mapstructure:"hash_cache_size"`
	MaxConcurrentWorkers int      `json:"max_concurrent_workers,omitempty" mapstructure:"max_concurrent_workers"`
	MinFreeBytes         uint64   `json:"min_free_bytes,omitempty" mapstructure:"min_free_bytes"`
	PruneDanglingRecords bool     `json:"prune_dangling_records,omitempty" mapstructure:"prune_dangling_records"`
	Path                 string   `json:"-" mapstructure:"-"`
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalInSeconds) * time.Second
}

func (c *Config) WatchDebounce() time.Duration {
	if c.WatchDebounceMillis <= 0 {
		return DefaultDebounceMillis * time.Millisecond
	}
	return time.Duration(c.WatchDebounceMillis) * time.Millisecond
}

// Validate checks the config and resolves the backup, database and log paths
// to absolute paths. Source directories are kept as written, they are the key
// records are stored under.
func (c *Config) Validate() error {
	if len(c.DirectoriesPaths) == 0 {
		return ErrNoDirectories
	}
	if c.BackupDirectoryPath == "" {
		return ErrNoBackupDirectory
	}
	if c.IntervalInSeconds < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, c.IntervalInSeconds)
	}
	if c.HashCacheSize < 0 || c.MaxConcurrentWorkers < 0 || c.WatchDebounceMillis < 0 {
		return ErrNegativeOption
	}

	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.LogFilePath == "" {
		c.LogFilePath = DefaultLogFilePath
	}

	var err error
	if c.BackupDirectoryPath, err = utils.ResolvePath(c.BackupDirectoryPath); err != nil {
		return fmt.Errorf("backup_directory_path: %w", err)
	}
	if c.DatabasePath, err = utils.ResolvePath(c.DatabasePath); err != nil {
		return fmt.Errorf("database_path: %w", err)
	}
	if c.LogFilePath, err = utils.ResolvePath(c.LogFilePath); err != nil {
		return fmt.Errorf("log_file_path: %w", err)
	}
	if c.LanguagePath != "" {
		if c.LanguagePath, err = utils.ResolvePath(c.LanguagePath); err != nil {
			return fmt.Errorf("language_path: %w", err)
		}
	}

	dirs, err := ExpandDirectories(c.DirectoriesPaths)
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		if !utils.DirExists(dir) {
			return fmt.Errorf("%w: %s", ErrSourceNotDirectory, dir)
		}
		abs, err := utils.ResolvePath(dir)
		if err != nil {
			return fmt.Errorf("directories_paths: %w", err)
		}
		if abs == c.BackupDirectoryPath {
			return fmt.Errorf("%w: %s", ErrBackupIsSource, dir)
		}
	}

	c.DirectoriesPaths = dirs
	return nil
}

// ExpandDirectories expands glob patterns, keeping plain entries verbatim, and
// rejects duplicates. Directories are compared after cleaning, so /a and /a/
// count as the same directory.
func ExpandDirectories(entries []string) ([]string, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	var dirs []string

	add := func(dir string) error {
		key := filepath.Clean(dir)
		if seen.Contains(key) {
			return fmt.Errorf("%w: %s", ErrDuplicateDirectory, dir)
		}
		seen.Add(key)
		dirs = append(dirs, dir)
		return nil
	}

	for _, entry := range entries {
		if entry == "" {
			continue
		}
		if !hasMeta(entry) {
			if err := add(entry); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(entry)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", entry, err)
		}
		sort.Strings(matches)
		for _, match := range matches {
			if !utils.DirExists(match) {
				continue
			}
			if err := add(match); err != nil {
				return nil, err
			}
		}
	}

	if len(dirs) == 0 {
		return nil, ErrNoDirectories
	}
	return dirs, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
