// Package scheduler feeds the analysis queues. Each stage scheduler
// periodically finds recent segments missing that stage's artifacts,
// enqueues them, and backs off exponentially while the pipeline is idle.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mobasher/mobasher/internal/config"
	"github.com/mobasher/mobasher/internal/queue"
)

// Enqueuer is the queue surface a stage scheduler needs.
type Enqueuer interface {
	EnqueueSegment(ctx context.Context, taskType string, payload queue.SegmentPayload, opts queue.EnqueueOptions) (bool, error)
}

// StageScheduler runs one stage's enqueue loop. The pass function does the
// actual work and reports how many tasks it enqueued; zero stretches the
// next wait, anything productive snaps it back to the base interval.
type StageScheduler struct {
	mu sync.Mutex

	name string
	pass func(ctx context.Context) (int, error)

	interval    time.Duration
	maxInterval time.Duration

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newStageScheduler(name string, cfg config.SchedulerConfig, logger *slog.Logger, pass func(ctx context.Context) (int, error)) *StageScheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	maxInterval := cfg.MaxInterval
	if maxInterval < interval {
		maxInterval = interval
	}
	return &StageScheduler{
		name:        name,
		pass:        pass,
		interval:    interval,
		maxInterval: maxInterval,
		logger:      logger.With(slog.String("component", "scheduler"), slog.String("stage", name)),
	}
}

// Start begins the background enqueue loop.
func (s *StageScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("%s scheduler already started", s.name)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("max_interval", s.maxInterval))
	return nil
}

// RunOnce executes a single enqueue pass outside the loop, returning the
// number of tasks enqueued. Used by the one-shot CLI enqueue commands.
func (s *StageScheduler) RunOnce(ctx context.Context) (int, error) {
	return s.pass(ctx)
}

// Stop stops the loop and waits for the current pass to finish.
func (s *StageScheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *StageScheduler) loop() {
	defer s.wg.Done()

	wait := s.interval
	for {
		n, err := s.pass(s.ctx)
		switch {
		case err != nil && s.ctx.Err() == nil:
			s.logger.Error("scheduler pass failed", slog.Any("error", err))
			wait = s.nextWait(wait)
		case n > 0:
			s.logger.Debug("scheduler pass enqueued", slog.Int("count", n))
			wait = s.interval
		default:
			wait = s.nextWait(wait)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(jitter(wait)):
		}
	}
}

// nextWait doubles the wait up to the configured ceiling.
func (s *StageScheduler) nextWait(wait time.Duration) time.Duration {
	wait *= 2
	if wait > s.maxInterval {
		wait = s.maxInterval
	}
	return wait
}

// jitter spreads the wait by +-20% so schedulers sharing a broker do not
// fire in lockstep.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}
