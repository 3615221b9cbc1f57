package symbolmeta

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs Task every Interval until the context passed to Start is done.
type Scheduler struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Task       func(ctx context.Context) error
	Logger     *zap.Logger

	wg sync.WaitGroup
}

// Start launches the schedule in its own goroutine. Task errors are logged
// and the schedule keeps running.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.RunAtStart {
			s.runOnce(ctx)
		}

		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.Logger.Debug("scheduler stopped", zap.String("task", s.Name))
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// Wait blocks until the schedule loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	if err := s.Task(ctx); err != nil {
		s.Logger.Warn("scheduled task failed",
			zap.String("task", s.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
}
