package market

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultTickInterval is how often live quotes move.
const DefaultTickInterval = 30 * time.Second

// TickFunc performs one price update cycle.
type TickFunc func(ctx context.Context)

// Scheduler runs a TickFunc on a fixed interval until stopped. Step runs a
// single cycle synchronously so tests can advance prices deterministically.
type Scheduler struct {
	interval time.Duration
	tick     TickFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(interval time.Duration, tick TickFunc) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{interval: interval, tick: tick}
}

// Start launches the tick loop in a goroutine. It returns false if the
// scheduler is already running. The loop ends on Stop or when ctx is done.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("price scheduler started", "interval", s.interval)
		for {
			select {
			case <-ctx.Done():
				slog.Info("price scheduler stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
	return true
}

// Stop cancels the loop and waits for an in-flight tick to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Step runs one tick on the caller's goroutine.
func (s *Scheduler) Step(ctx context.Context) {
	s.tick(ctx)
}
