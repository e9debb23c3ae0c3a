// Package pipeline runs the full check cycle for one monitor: lock, render,
// extract, evaluate, summarize, commit. The scheduler and the run-now API
// endpoint both funnel through Dispatcher.RunMonitor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watcherhq/watcher/internal/alert"
	"github.com/watcherhq/watcher/internal/browser"
	"github.com/watcherhq/watcher/internal/database"
	"github.com/watcherhq/watcher/internal/extractor"
	"github.com/watcherhq/watcher/internal/genai"
	"github.com/watcherhq/watcher/internal/logging"
	"github.com/watcherhq/watcher/internal/metrics"
	"github.com/watcherhq/watcher/internal/models"
)

// runBudgetMargin is added on top of the extractor's worst-case page-load
// budget to cover pool acquisition, summary generation and the commit.
const runBudgetMargin = 2 * time.Minute

// MonitorStore is the persistence surface the dispatcher needs. It is
// satisfied by database.MonitorRepository.
type MonitorStore interface {
	GetByID(ctx context.Context, id string) (*models.Monitor, error)
	AcquireRunLock(ctx context.Context, monitorID string) (func(), error)
	CommitRun(ctx context.Context, monitorID string, snapshot *models.Snapshot, advanceBaseline bool, item *models.FeedItem) error
	RecordFailure(ctx context.Context, monitorID string, runErr error, at time.Time) error
}

// RunRecorder appends run outcomes to the run log. Satisfied by
// database.RunLogRepository.
type RunRecorder interface {
	Record(ctx context.Context, run *models.RunRecord) error
}

// Dispatcher executes monitor runs end to end.
type Dispatcher struct {
	monitors  MonitorStore
	runs      RunRecorder
	pool      *browser.Pool
	extractor *extractor.Extractor
	generator genai.Generator
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewDispatcher wires the pipeline. runs and collector may be nil, in which
// case run logging and metrics are skipped.
func NewDispatcher(
	monitors MonitorStore,
	runs RunRecorder,
	pool *browser.Pool,
	ext *extractor.Extractor,
	generator genai.Generator,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		monitors:  monitors,
		runs:      runs,
		pool:      pool,
		extractor: ext,
		generator: generator,
		collector: collector,
		logger:    logger,
	}
}

// RunMonitor performs one complete check of the monitor. At most one run per
// monitor is in flight at a time; a concurrent attempt fails fast with
// database.ErrCommitConflict without touching any state.
func (d *Dispatcher) RunMonitor(ctx context.Context, monitorID string) error {
	started := time.Now().UTC()

	release, err := d.monitors.AcquireRunLock(ctx, monitorID)
	if err != nil {
		if errors.Is(err, database.ErrCommitConflict) {
			d.logger.Debug("run already in flight, skipping", "monitor_id", monitorID)
			d.finish(ctx, monitorID, started, models.RunResultSkipped, err, false)
			return err
		}
		return fmt.Errorf("failed to lock monitor %s: %w", monitorID, err)
	}
	defer release()

	m, err := d.monitors.GetByID(ctx, monitorID)
	if err != nil {
		return fmt.Errorf("failed to load monitor %s: %w", monitorID, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, d.extractor.MaxBudget()+runBudgetMargin)
	defer cancel()

	logger := logging.ForMonitor(d.logger, m.ID, m.URL)
	logger.Info("starting monitor run")

	result, err := d.extract(runCtx, m)
	if err != nil {
		logger.Warn("monitor run failed", "error", err)
		// Persist last_error on a fresh context; runCtx may already be dead
		// when the failure is the run budget itself.
		recCtx, recCancel := context.WithTimeout(context.WithoutCancel(runCtx), 5*time.Second)
		if recErr := d.monitors.RecordFailure(recCtx, m.ID, err, time.Now().UTC()); recErr != nil {
			logger.Error("failed to record run failure", "error", recErr)
		}
		recCancel()
		d.finish(runCtx, m.ID, started, classifyFailure(err), err, false)
		return err
	}

	decision := alert.Evaluate(m, result.Snapshot)

	var item *models.FeedItem
	if decision.Fire {
		summary := genai.SummaryOrFallback(runCtx, d.generator, decision.Diff, logger)
		item = &models.FeedItem{
			ID:          uuid.NewString(),
			MonitorID:   m.ID,
			Title:       alertTitle(m, decision),
			Description: summary,
			Link:        m.URL,
			PublishedAt: result.Snapshot.CapturedAt,
		}
	}

	if err := d.monitors.CommitRun(runCtx, m.ID, result.Snapshot, decision.AdvanceBaseline, item); err != nil {
		d.finish(runCtx, m.ID, started, models.RunResultFailed, err, false)
		return fmt.Errorf("failed to commit run for monitor %s: %w", m.ID, err)
	}

	if item != nil {
		logger.Info("alert published", "item_id", item.ID, "changes", len(decision.Diff))
		if d.collector != nil {
			d.collector.AlertPublished()
		}
	} else {
		logger.Info("monitor run complete", "fired", false, "baseline_advanced", decision.AdvanceBaseline)
	}

	d.finish(runCtx, m.ID, started, models.RunResultOK, nil, item != nil)
	return nil
}

// extract leases a renderer and runs the extraction. A renderer that produced
// an error is discarded instead of returned to the pool.
func (d *Dispatcher) extract(ctx context.Context, m *models.Monitor) (*extractor.Result, error) {
	lease, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	result, err := d.extractor.Extract(ctx, lease.Renderer, m.URL, m.Config)
	if err != nil {
		lease.Discard()
		return nil, err
	}

	lease.Release()
	return result, nil
}

func (d *Dispatcher) finish(ctx context.Context, monitorID string, started time.Time, result string, runErr error, fired bool) {
	duration := time.Since(started)

	if d.collector != nil {
		d.collector.ObserveRun(result, duration)
	}

	if d.runs == nil {
		return
	}

	record := &models.RunRecord{
		MonitorID: monitorID,
		StartedAt: started,
		Duration:  duration,
		Result:    result,
		Fired:     fired,
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}

	// Record on a fresh context so the run log survives a blown run budget.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := d.runs.Record(logCtx, record); err != nil {
		d.logger.Error("failed to record run", "monitor_id", monitorID, "error", err)
	}
}

func classifyFailure(err error) string {
	if errors.Is(err, extractor.ErrScrapeTimeout) {
		return models.RunResultTimeout
	}
	return models.RunResultFailed
}

// alertTitle builds the feed item headline from the monitor and decision.
func alertTitle(m *models.Monitor, d alert.Decision) string {
	host := m.URL
	if u, err := url.Parse(m.URL); err == nil && u.Host != "" {
		host = u.Host
	}

	if len(d.Triggered) > 0 {
		return fmt.Sprintf("%s: %s", host, strings.Join(d.Triggered, ", "))
	}

	fields := d.Diff.Fields()
	if len(fields) > 0 {
		return fmt.Sprintf("%s changed: %s", host, strings.Join(fields, ", "))
	}

	return fmt.Sprintf("%s changed", host)
}
