package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/backupsync/internal/backup"
	"github.com/openmined/backupsync/internal/catalog"
	"github.com/openmined/backupsync/internal/config"
	"github.com/openmined/backupsync/internal/hasher"
	"github.com/openmined/backupsync/internal/mirror"
	"github.com/openmined/backupsync/internal/records"
)

const shutdownTimeout = 30 * time.Second

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}

// run starts the scheduler, and the watcher when enabled, and blocks until
// ctx is done and in-flight cycles have drained.
func run(ctx context.Context, cfg *config.Config) error {
	messages, err := loadCatalog(cfg.LanguagePath)
	if err != nil {
		return err
	}

	store, err := records.NewStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var h backup.Hasher = hasher.NewSHA256()
	if cfg.HashCacheSize > 0 {
		if h, err = hasher.NewCached(h, cfg.HashCacheSize); err != nil {
			return err
		}
	}

	engine, err := backup.NewEngine(backup.Options{
		Directories:          cfg.DirectoriesPaths,
		Store:                store,
		Mirror:               mirror.New(cfg.BackupDirectoryPath),
		Hasher:               h,
		Messages:             messages,
		IgnorePatterns:       cfg.IgnorePatterns,
		MaxConcurrentWorkers: cfg.MaxConcurrentWorkers,
		MinFreeBytes:         cfg.MinFreeBytes,
		PruneDanglingRecords: cfg.PruneDanglingRecords,
	})
	if err != nil {
		return err
	}

	scheduler, err := backup.NewScheduler(engine, cfg.Interval(), nil)
	if err != nil {
		return err
	}

	tracked, err := store.Count()
	if err != nil {
		return err
	}

	slog.Info(messages.Get(catalog.ServerStart),
		"directories", len(cfg.DirectoriesPaths),
		"tracked", tracked,
		"backup", cfg.BackupDirectoryPath,
		"interval", cfg.Interval(),
	)

	var watcher *backup.Watcher
	if cfg.Watch {
		watcher = backup.NewWatcher(engine, cfg.WatchDebounce())
		if err := watcher.Start(ctx); err != nil {
			return err
		}
	}

	err = scheduler.Run(ctx)

	if !scheduler.Wait(shutdownTimeout) {
		slog.Warn("shutdown timed out waiting for cycles", "timeout", shutdownTimeout)
	}
	if watcher != nil {
		watcher.Wait()
	}

	slog.Info(messages.Get(catalog.ServerStop))
	return err
}
