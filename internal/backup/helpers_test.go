package backup

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/openmined/backupsync/internal/catalog"
	"github.com/openmined/backupsync/internal/hasher"
	"github.com/openmined/backupsync/internal/mirror"
	"github.com/openmined/backupsync/internal/records"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	root   string
	store  *records.Store
	mirror *spyMirror
	hasher *spyHasher
	engine *Engine
}

// newTestEnv creates one source directory per name under <root>/<name>/src
// so every directory gets its own backup folder.
func newTestEnv(t *testing.T, names []string, mutate func(*Options)) *testEnv {
	t.Helper()
	root := t.TempDir()

	var dirs []string
	for _, name := range names {
		dir := filepath.Join(root, name, "src")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		dirs = append(dirs, dir)
	}

	store, err := records.NewStore(filepath.Join(root, "state", "storage.db"))
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })

	spyM := &spyMirror{Mirror: mirror.New(filepath.Join(root, "backup"))}
	spyH := &spyHasher{next: hasher.NewSHA256()}

	opts := Options{
		Directories: dirs,
		Store:       store,
		Mirror:      spyM,
		Hasher:      spyH,
		Messages:    catalog.Default(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	engine, err := NewEngine(opts)
	require.NoError(t, err)

	return &testEnv{root: root, store: store, mirror: spyM, hasher: spyH, engine: engine}
}

func (e *testEnv) dir(i int) string {
	return e.engine.directories[i]
}

func (e *testEnv) backupPath(dir, name string) string {
	return e.mirror.BackupPathFor(dir, filepath.Join(dir, name))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func sha(t *testing.T, path string) string {
	t.Helper()
	h, err := hasher.NewSHA256().Hash(path)
	require.NoError(t, err)
	return h
}

// spyMirror counts copies and can be told to fail them.
type spyMirror struct {
	*mirror.Mirror
	copies   atomic.Int32
	failCopy atomic.Bool
}

func (m *spyMirror) CopyToBackup(directoryPath, filePath string) (int64, error) {
	if m.failCopy.Load() {
		return 0, errors.New("backup destination not writable")
	}
	m.copies.Add(1)
	return m.Mirror.CopyToBackup(directoryPath, filePath)
}

// spyHasher tracks concurrent calls, can fail chosen paths and can hold the
// first call until released.
type spyHasher struct {
	next Hasher

	mu       sync.Mutex
	failing  map[string]bool
	gate     chan struct{}
	entered  chan struct{}
	gateOnce sync.Once

	active    atomic.Int32
	maxActive atomic.Int32
}

func (h *spyHasher) fail(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failing == nil {
		h.failing = map[string]bool{}
	}
	h.failing[path] = true
}

// hold makes the first Hash call signal entered and block until release is called.
func (h *spyHasher) hold() (entered <-chan struct{}, release func()) {
	h.gate = make(chan struct{})
	h.entered = make(chan struct{})
	return h.entered, func() { close(h.gate) }
}

func (h *spyHasher) Hash(path string) (string, error) {
	n := h.active.Add(1)
	defer h.active.Add(-1)
	for {
		max := h.maxActive.Load()
		if n <= max || h.maxActive.CompareAndSwap(max, n) {
			break
		}
	}

	if h.gate != nil {
		first := false
		h.gateOnce.Do(func() { first = true })
		if first {
			close(h.entered)
			<-h.gate
		}
	}

	h.mu.Lock()
	failing := h.failing[path]
	h.mu.Unlock()
	if failing {
		return "", os.ErrPermission
	}
	return h.next.Hash(path)
}

func captureLogs(ctx context.Context) (context.Context, *syncBuffer) {
	buf := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return withLogger(ctx, logger), buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
