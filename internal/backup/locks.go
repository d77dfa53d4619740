package backup

import (
	"fmt"
	"sync"
	"sync/atomic"
)

type workerKind int

const (
	workerScan workerKind = iota
	workerReconcile
	numWorkerKinds
)

func (k workerKind) String() string {
	if k == workerScan {
		return "scan"
	}
	return "reconcile"
}

// maxInFlight bounds how many workers of one kind may hold or wait for a
// directory lock when dispatched by a cycle: one running and one queued.
const maxInFlight = 2

// dirLock serializes every scan and reconcile of one directory.
type dirLock struct {
	mu       sync.Mutex
	inFlight [numWorkerKinds]atomic.Int32
}

func (l *dirLock) lock() {
	l.mu.Lock()
}

func (l *dirLock) unlock() {
	l.mu.Unlock()
}

// admit reserves an in-flight slot for kind. It fails when the directory
// already has maxInFlight workers of that kind.
func (l *dirLock) admit(kind workerKind) bool {
	if l.inFlight[kind].Add(1) > maxInFlight {
		l.inFlight[kind].Add(-1)
		return false
	}
	return true
}

func (l *dirLock) release(kind workerKind) {
	l.inFlight[kind].Add(-1)
}

// lockTable is built once from the configured directories and never changes,
// so it is read without synchronization.
type lockTable struct {
	locks map[string]*dirLock
}

func newLockTable(directories []string) *lockTable {
	t := &lockTable{locks: make(map[string]*dirLock, len(directories))}
	for _, dir := range directories {
		t.locks[dir] = &dirLock{}
	}
	return t
}

func (t *lockTable) get(directoryPath string) (*dirLock, error) {
	l, ok := t.locks[directoryPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDirectory, directoryPath)
	}
	return l, nil
}
