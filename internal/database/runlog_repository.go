package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/watcherhq/watcher/internal/models"
)

// RunLogRepository records scheduler executions for debugging and stats.
type RunLogRepository struct {
	db *sql.DB
}

// NewRunLogRepository creates a new run log repository.
func NewRunLogRepository(db *sql.DB) *RunLogRepository {
	return &RunLogRepository{db: db}
}

// Record appends one run to the log.
func (r *RunLogRepository) Record(ctx context.Context, run *models.RunRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO run_log (monitor_id, started_at, duration_ms, result, error, fired)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.MonitorID, run.StartedAt, run.Duration.Milliseconds(), run.Result, run.Error, run.Fired)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListByMonitor returns a monitor's most recent runs, newest first.
func (r *RunLogRepository) ListByMonitor(ctx context.Context, monitorID string, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, monitor_id, started_at, duration_ms, result, error, fired
		FROM run_log
		WHERE monitor_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		var run models.RunRecord
		var durationMs int64
		err := rows.Scan(&run.ID, &run.MonitorID, &run.StartedAt, &durationMs, &run.Result, &run.Error, &run.Fired)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run rows: %w", err)
	}

	return runs, nil
}

// Stats aggregates a monitor's run history over the given window.
func (r *RunLogRepository) Stats(ctx context.Context, monitorID string, since time.Time) (*models.RunStats, error) {
	stats := &models.RunStats{}

	var avgMs sql.NullFloat64
	var lastRun sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE result = 'ok'),
			COUNT(*) FILTER (WHERE result IN ('timeout', 'failed')),
			COUNT(*) FILTER (WHERE fired),
			AVG(duration_ms),
			MAX(started_at)
		FROM run_log
		WHERE monitor_id = $1 AND started_at >= $2
	`, monitorID, since).Scan(&stats.Total, &stats.Succeeded, &stats.Failed, &stats.Alerts, &avgMs, &lastRun)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate run stats: %w", err)
	}

	if avgMs.Valid {
		stats.AvgDuration = time.Duration(avgMs.Float64) * time.Millisecond
	}
	if lastRun.Valid {
		stats.LastRunAt = lastRun.Time
	}

	return stats, nil
}

// Prune removes runs older than the cutoff and returns how many were deleted.
func (r *RunLogRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM run_log WHERE started_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune run log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return n, nil
}
