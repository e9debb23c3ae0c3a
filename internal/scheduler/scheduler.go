// Package scheduler periodically finds monitors whose check interval has
// elapsed and dispatches pipeline runs for them, bounded by a concurrency
// limit.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/database"
	"github.com/watcherhq/watcher/internal/models"
)

// MonitorLister finds due monitors. Satisfied by database.MonitorRepository.
type MonitorLister interface {
	ListDue(ctx context.Context, now time.Time) ([]models.Monitor, error)
}

// Runner executes one monitor run. Satisfied by pipeline.Dispatcher.
type Runner interface {
	RunMonitor(ctx context.Context, monitorID string) error
}

// RunPruner trims old run log rows. Satisfied by database.RunLogRepository.
type RunPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Run log rows are kept for 30 days; the sweep runs at most once per day.
const (
	runLogRetention = 30 * 24 * time.Hour
	pruneInterval   = 24 * time.Hour
)

// Scheduler manages automatic execution of due monitor checks.
type Scheduler struct {
	monitors      MonitorLister
	runner        Runner
	pruner        RunPruner
	logger        *slog.Logger
	stopChan      chan struct{}
	checkInterval time.Duration
	sem           chan struct{}
	wg            sync.WaitGroup
	lastPrune     time.Time
}

// New creates a scheduler with the configured check interval and run
// concurrency. pruner may be nil, disabling the retention sweep.
func New(monitors MonitorLister, runner Runner, pruner RunPruner, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	concurrency := cfg.ConcurrentRuns
	if concurrency < 1 {
		concurrency = 1
	}

	return &Scheduler{
		monitors:      monitors,
		runner:        runner,
		pruner:        pruner,
		logger:        logger,
		stopChan:      make(chan struct{}),
		checkInterval: cfg.CheckInterval,
		sem:           make(chan struct{}, concurrency),
	}
}

// Start begins the scheduler loop. It blocks until Stop is called or the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting monitor scheduler",
		"check_interval", s.checkInterval,
		"concurrent_runs", cap(s.sem),
	)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Run once immediately on start
	s.checkAndDispatch(ctx)
	s.maybePrune(ctx)

	for {
		select {
		case <-ticker.C:
			s.checkAndDispatch(ctx)
			s.maybePrune(ctx)
		case <-s.stopChan:
			s.logger.Info("monitor scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("monitor scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler loop and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// maybePrune deletes run log rows past retention. Only the Start loop calls
// it, so lastPrune needs no locking.
func (s *Scheduler) maybePrune(ctx context.Context) {
	if s.pruner == nil || time.Since(s.lastPrune) < pruneInterval {
		return
	}
	s.lastPrune = time.Now()

	n, err := s.pruner.Prune(ctx, time.Now().UTC().Add(-runLogRetention))
	if err != nil {
		s.logger.Error("failed to prune run log", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("pruned run log", "deleted", n)
	}
}

// checkAndDispatch finds due monitors and launches a bounded number of
// concurrent runs. When all run slots are busy the remaining due monitors are
// left for the next tick rather than queued.
func (s *Scheduler) checkAndDispatch(ctx context.Context) {
	due, err := s.monitors.ListDue(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to list due monitors", "error", err)
		return
	}

	if len(due) == 0 {
		return
	}

	s.logger.Debug("dispatching due monitors", "count", len(due))

	for _, m := range due {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case s.sem <- struct{}{}:
		default:
			s.logger.Debug("all run slots busy, deferring to next tick",
				"remaining", len(due))
			return
		}

		s.wg.Add(1)
		go func(monitorID string) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			err := s.runner.RunMonitor(ctx, monitorID)
			switch {
			case err == nil:
			case errors.Is(err, database.ErrCommitConflict):
				s.logger.Debug("monitor run already in flight", "monitor_id", monitorID)
			default:
				s.logger.Error("monitor run failed", "monitor_id", monitorID, "error", err)
			}
		}(m.ID)
	}
}
