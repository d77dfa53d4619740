package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/openmined/backupsync/internal/utils"
	"github.com/rjeczalik/notify"
)

const watchEventBuffer = 256

// Watcher triggers an out of band sync of a directory when files directly
// inside it change. Bursts of events are debounced per directory.
type Watcher struct {
	engine   *Engine
	debounce time.Duration
	events   chan notify.EventInfo
	byPath   map[string]string // resolved directory -> configured directory

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup

	onFire func(dir string) // test hook, called before each triggered sync
}

func NewWatcher(engine *Engine, debounce time.Duration) *Watcher {
	return &Watcher{
		engine:   engine,
		debounce: debounce,
		byPath:   make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
}

// Start watches every configured directory, non recursively, until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.events = make(chan notify.EventInfo, watchEventBuffer)

	for _, dir := range w.engine.Directories() {
		resolved, err := utils.ResolvePath(dir)
		if err != nil {
			w.stopWatching()
			return fmt.Errorf("resolve %s: %w", dir, err)
		}
		if real, err := filepath.EvalSymlinks(resolved); err == nil {
			resolved = real
		}
		w.byPath[resolved] = dir

		if err := notify.Watch(resolved, w.events, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
			w.stopWatching()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		loggerFrom(ctx).Debug("watching directory", "dir", dir)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.stopWatching()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.closed = true
			for _, t := range w.timers {
				t.Stop()
			}
			w.mu.Unlock()
			return
		case ev := <-w.events:
			dir, ok := w.directoryFor(ev.Path())
			if !ok {
				continue
			}
			w.schedule(ctx, dir)
		}
	}
}

func (w *Watcher) directoryFor(eventPath string) (string, bool) {
	dir, ok := w.byPath[filepath.Dir(eventPath)]
	return dir, ok
}

func (w *Watcher) schedule(ctx context.Context, dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scheduleLocked(ctx, dir)
}

// scheduleLocked arms or pushes back the debounce timer of dir. w.mu must be held.
func (w *Watcher) scheduleLocked(ctx context.Context, dir string) {
	if w.closed {
		return
	}
	// Stop fails once the timer fired and its callback is waiting on mu. That
	// callback keeps its run and a fresh timer covers the new event.
	if t, ok := w.timers[dir]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}

	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.timers[dir] == t {
			delete(w.timers, dir)
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		// added under mu while the loop still holds the group open
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()
		w.fire(ctx, dir)
	})
	w.timers[dir] = t
}

func (w *Watcher) fire(ctx context.Context, dir string) {
	if w.onFire != nil {
		w.onFire(dir)
	}
	loggerFrom(ctx).Debug("change detected", "dir", dir)
	if err := w.engine.SyncDirectory(context.WithoutCancel(ctx), dir); err != nil {
		loggerFrom(ctx).Error("watch sync failed", "dir", dir, "error", err)
	}
}

func (w *Watcher) stopWatching() {
	if w.events != nil {
		notify.Stop(w.events)
	}
}

// Wait blocks until the event loop and any triggered syncs have finished.
func (w *Watcher) Wait() {
	w.wg.Wait()
}
