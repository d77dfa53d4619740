// Package backup detects added, changed and deleted files in the configured
// source directories and mirrors them into the backup tree.
package backup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Directories          []string
	Store                Store
	Mirror               Mirror
	Hasher               Hasher
	Messages             Messages
	IgnorePatterns       []string
	MaxConcurrentWorkers int
	MinFreeBytes         uint64
	PruneDanglingRecords bool
}

type Engine struct {
	directories  []string
	store        Store
	mirror       Mirror
	hasher       Hasher
	messages     Messages
	ignore       *gitignore.GitIgnore
	locks        *lockTable
	maxWorkers   int
	minFreeBytes uint64
	pruneDangled bool
}

func NewEngine(opts Options) (*Engine, error) {
	if len(opts.Directories) == 0 {
		return nil, ErrNoDirectories
	}
	if opts.Store == nil || opts.Mirror == nil || opts.Hasher == nil || opts.Messages == nil {
		return nil, ErrMissingComponent
	}

	dirs := make([]string, len(opts.Directories))
	copy(dirs, opts.Directories)

	return &Engine{
		directories:  dirs,
		store:        opts.Store,
		mirror:       opts.Mirror,
		hasher:       opts.Hasher,
		messages:     opts.Messages,
		ignore:       gitignore.CompileIgnoreLines(opts.IgnorePatterns...),
		locks:        newLockTable(dirs),
		maxWorkers:   opts.MaxConcurrentWorkers,
		minFreeBytes: opts.MinFreeBytes,
		pruneDangled: opts.PruneDanglingRecords,
	}, nil
}

func (e *Engine) Directories() []string {
	dirs := make([]string, len(e.directories))
	copy(dirs, e.directories)
	return dirs
}

// CycleResult collects what the workers of one cycle did. Directories whose
// worker was coalesced away have no entry for that worker.
type CycleResult struct {
	ID         string
	Scans      []*ScanResult
	Reconciles []*ReconcileResult
	Errors     []error
	Coalesced  int
	Duration   time.Duration
}

func (r *CycleResult) BytesCopied() int64 {
	var n int64
	for _, s := range r.Scans {
		n += s.BytesCopied
	}
	return n
}

// RunCycle scans and reconciles every configured directory concurrently and
// waits for all the workers it dispatched. A failing directory is logged and
// recorded in the result without affecting the others.
func (e *Engine) RunCycle(ctx context.Context) *CycleResult {
	result := &CycleResult{ID: uuid.New().String()}
	logger := loggerFrom(ctx).With("cycle", result.ID)
	ctx = withLogger(ctx, logger)
	start := time.Now()

	logger.Debug("cycle start", "directories", len(e.directories))
	e.checkFreeSpace(ctx)

	var mu sync.Mutex
	var eg errgroup.Group
	if e.maxWorkers > 0 {
		eg.SetLimit(e.maxWorkers)
	}

	for _, dir := range e.directories {
		eg.Go(func() error {
			scan, ran, err := e.dispatchScan(ctx, dir)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case !ran:
				result.Coalesced++
			case err != nil:
				result.Errors = append(result.Errors, err)
			}
			if scan != nil {
				result.Scans = append(result.Scans, scan)
			}
			return nil
		})
		eg.Go(func() error {
			rec, ran, err := e.dispatchReconcile(ctx, dir)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case !ran:
				result.Coalesced++
			case err != nil:
				result.Errors = append(result.Errors, err)
			}
			if rec != nil {
				result.Reconciles = append(result.Reconciles, rec)
			}
			return nil
		})
	}
	_ = eg.Wait()

	result.Duration = time.Since(start)
	e.logCycle(logger, result)
	return result
}

// SyncDirectory runs a coalesced scan followed by a reconcile of one directory.
func (e *Engine) SyncDirectory(ctx context.Context, directoryPath string) error {
	_, _, scanErr := e.dispatchScan(ctx, directoryPath)
	_, _, recErr := e.dispatchReconcile(ctx, directoryPath)
	return errors.Join(scanErr, recErr)
}

func (e *Engine) dispatchScan(ctx context.Context, dir string) (*ScanResult, bool, error) {
	l, err := e.locks.get(dir)
	if err != nil {
		return nil, true, err
	}
	if !l.admit(workerScan) {
		loggerFrom(ctx).Info("scan coalesced", "dir", dir)
		return nil, false, nil
	}
	defer l.release(workerScan)

	res, err := e.scanWithLock(ctx, l, dir)
	if err != nil {
		loggerFrom(ctx).Error("scan failed", "dir", dir, "error", err)
	}
	return res, true, err
}

func (e *Engine) dispatchReconcile(ctx context.Context, dir string) (*ReconcileResult, bool, error) {
	l, err := e.locks.get(dir)
	if err != nil {
		return nil, true, err
	}
	if !l.admit(workerReconcile) {
		loggerFrom(ctx).Info("reconcile coalesced", "dir", dir)
		return nil, false, nil
	}
	defer l.release(workerReconcile)

	res, err := e.reconcileWithLock(ctx, l, dir)
	if err != nil {
		loggerFrom(ctx).Error("reconcile failed", "dir", dir, "error", err)
	}
	return res, true, err
}

func (e *Engine) checkFreeSpace(ctx context.Context) {
	if e.minFreeBytes == 0 {
		return
	}
	logger := loggerFrom(ctx)

	// the backup root is created lazily, measure the closest existing ancestor
	path := e.mirror.Root()
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			return
		}
		path = parent
	}

	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		logger.Debug("disk usage unavailable", "path", path, "error", err)
		return
	}
	if usage.Free < e.minFreeBytes {
		logger.Warn("backup destination low on space",
			"path", path,
			"free", humanize.Bytes(usage.Free),
			"required", humanize.Bytes(e.minFreeBytes),
		)
	}
}

func (e *Engine) logCycle(logger *slog.Logger, r *CycleResult) {
	var added, restored, changed, unchanged, skipped, removed, dangling int
	for _, s := range r.Scans {
		added += s.Added
		restored += s.Restored
		changed += s.Changed
		unchanged += s.Unchanged
		skipped += s.Skipped
	}
	for _, rec := range r.Reconciles {
		removed += rec.Removed + rec.Pruned
		dangling += rec.Dangling
		skipped += rec.Skipped
	}

	attrs := []any{
		"added", added,
		"restored", restored,
		"changed", changed,
		"unchanged", unchanged,
		"removed", removed,
		"dangling", dangling,
		"skipped", skipped,
		"failed", len(r.Errors),
		"coalesced", r.Coalesced,
		"copied", humanize.Bytes(uint64(r.BytesCopied())),
		"tsTotal", r.Duration,
	}
	if added+restored+changed+removed+len(r.Errors) > 0 {
		logger.Info("cycle done", attrs...)
	} else {
		logger.Debug("cycle done", attrs...)
	}
}
