package backup

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrInvalidInterval = errors.New("interval must be positive")

// Scheduler starts a cycle right away and then once per interval. Cycles are
// fire-and-forget: a tick never waits for earlier cycles, the directory locks
// and their in-flight bound keep slow directories from piling up.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	onCycle  func(*CycleResult)
	wg       sync.WaitGroup
}

// NewScheduler returns a scheduler for engine. onCycle, when set, is called
// from each cycle's goroutine with its result.
func NewScheduler(engine *Engine, interval time.Duration, onCycle func(*CycleResult)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		onCycle:  onCycle,
	}, nil
}

// Run issues cycles until ctx is done. Cycles already started keep running
// on a context detached from ctx, use Wait to let them finish.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.launch(ctx)
	for {
		select {
		case <-ctx.Done():
			loggerFrom(ctx).Debug("scheduler stopped")
			return nil
		case <-ticker.C:
			s.launch(ctx)
		}
	}
}

func (s *Scheduler) launch(ctx context.Context) {
	cycleCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result := s.engine.RunCycle(cycleCtx)
		if s.onCycle != nil {
			s.onCycle(result)
		}
	}()
}

// Wait blocks until every launched cycle finished or timeout passed. It
// reports whether all cycles finished.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
