package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one periodic tick. The context is cancelled when the task is
// stopped; ticks should treat that as "discard whatever you were doing".
type Task func(ctx context.Context)

// Scheduler owns a keyed set of cancellable repeating tasks. It replaces
// the ambient map-of-timers pattern: at most one task exists per id, and
// start/stop are the only mutation points on the shared registry.
//
// Within one task, ticks are strictly sequential: the next tick is not
// dispatched until the previous invocation returns. Tasks for different ids
// run on independent goroutines and interleave freely.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{tasks: make(map[string]context.CancelFunc), logger: logger}
}

// Start registers a repeating task under id. Returns false when a task for
// this id is already registered (compare-and-set: first caller wins).
func (s *Scheduler) Start(id string, interval time.Duration, fn Task) bool {
	s.mu.Lock()
	if _, exists := s.tasks[id]; exists {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.tasks[id] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, id, interval, fn)
	return true
}

func (s *Scheduler) run(ctx context.Context, id string, interval time.Duration, fn Task) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop racing this tick cancels ctx; the tick observes it
			// and discards its result instead of resurrecting the task.
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}
}

// Stop cancels the task registered under id. Idempotent: stopping an
// unknown or already-stopped id is a no-op returning false.
func (s *Scheduler) Stop(id string) bool {
	s.mu.Lock()
	cancel, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Active reports whether a task is currently registered under id.
func (s *Scheduler) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// StopAll cancels every registered task and waits for their goroutines to
// drain. Used on shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for id, cancel := range s.tasks {
		delete(s.tasks, id)
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if s.logger != nil {
		s.logger.Info("scheduler drained")
	}
}
