package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/watcherhq/watcher/internal/models"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCommitConflict indicates another run for the same monitor already
	// holds the per-monitor lock.
	ErrCommitConflict = errors.New("monitor run already in flight")

	// ErrDuplicateSlug indicates the public slug is already taken by another
	// monitor.
	ErrDuplicateSlug = errors.New("slug already in use")
)

// MonitorRepository handles monitor persistence, including the atomic
// state-transition commit at the end of a pipeline run.
type MonitorRepository struct {
	db *sql.DB
}

// NewMonitorRepository creates a new monitor repository.
func NewMonitorRepository(db *sql.DB) *MonitorRepository {
	return &MonitorRepository{db: db}
}

const monitorColumns = `
	id, owner_id, url, description, config, current_state, last_alert_state,
	alert_mode, reset_policy, interval_minutes, public, slug,
	last_checked_at, last_error, created_at, updated_at
`

// Create inserts a new monitor.
func (r *MonitorRepository) Create(ctx context.Context, m *models.Monitor) error {
	configJSON, err := json.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		INSERT INTO monitors (id, owner_id, url, description, config,
			alert_mode, reset_policy, interval_minutes, public, slug,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $11)
	`

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, query,
		m.ID, m.OwnerID, m.URL, m.Description, configJSON,
		m.AlertMode, m.ResetPolicy, m.IntervalMin, m.Public, m.Slug, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "monitors_slug_key") {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("failed to insert monitor: %w", err)
	}

	return nil
}

// GetByID retrieves a monitor by its ID.
func (r *MonitorRepository) GetByID(ctx context.Context, id string) (*models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE id = $1`
	return r.scanMonitor(r.db.QueryRowContext(ctx, query, id))
}

// GetBySlug retrieves a public monitor by its public slug.
func (r *MonitorRepository) GetBySlug(ctx context.Context, slug string) (*models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE slug = $1 AND public = TRUE`
	return r.scanMonitor(r.db.QueryRowContext(ctx, query, slug))
}

// ListByOwner returns all monitors belonging to a user, newest first.
func (r *MonitorRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	defer rows.Close()

	return collectMonitors(rows)
}

// ListDue returns monitors whose check interval has elapsed at the given
// time, never checked first.
func (r *MonitorRepository) ListDue(ctx context.Context, now time.Time) ([]models.Monitor, error) {
	query := `
		SELECT ` + monitorColumns + `
		FROM monitors
		WHERE last_checked_at IS NULL
		   OR last_checked_at <= $1 - (interval_minutes * INTERVAL '1 minute')
		ORDER BY last_checked_at ASC NULLS FIRST
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due monitors: %w", err)
	}
	defer rows.Close()

	return collectMonitors(rows)
}

// Update persists owner-editable fields (url, description, config, alerting
// settings). Pipeline-owned state fields are only touched by CommitRun and
// RecordFailure.
func (r *MonitorRepository) Update(ctx context.Context, m *models.Monitor) error {
	configJSON, err := json.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		UPDATE monitors
		SET url = $2,
		    description = $3,
		    config = $4,
		    alert_mode = $5,
		    reset_policy = $6,
		    interval_minutes = $7,
		    public = $8,
		    slug = NULLIF($9, ''),
		    updated_at = $10
		WHERE id = $1
	`

	m.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		m.ID, m.URL, m.Description, configJSON,
		m.AlertMode, m.ResetPolicy, m.IntervalMin, m.Public, m.Slug, m.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "monitors_slug_key") {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("failed to update monitor: %w", err)
	}

	return requireRow(result)
}

// Delete removes a monitor and, via cascade, its feed items and run log.
func (r *MonitorRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM monitors WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete monitor: %w", err)
	}
	return requireRow(result)
}

// ResetAlertState clears last_alert_state, re-arming a "once" monitor.
func (r *MonitorRepository) ResetAlertState(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE monitors SET last_alert_state = NULL, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to reset alert state: %w", err)
	}
	return requireRow(result)
}

// AcquireRunLock takes the per-monitor advisory lock, guaranteeing at most
// one in-flight run per monitor across all processes. The returned release
// function must be called on every exit path. A held lock fails immediately
// with ErrCommitConflict.
func (r *MonitorRepository) AcquireRunLock(ctx context.Context, monitorID string) (func(), error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain connection for run lock: %w", err)
	}

	var acquired bool
	err = conn.QueryRowContext(ctx,
		"SELECT pg_try_advisory_lock(hashtextextended($1, 0))", monitorID).Scan(&acquired)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}

	if !acquired {
		conn.Close()
		return nil, fmt.Errorf("%w: monitor %s", ErrCommitConflict, monitorID)
	}

	release := func() {
		// Unlock on the same session that took the lock; closing the
		// connection would release it anyway, but unlock explicitly so the
		// pooled connection comes back clean.
		_, _ = conn.ExecContext(context.Background(),
			"SELECT pg_advisory_unlock(hashtextextended($1, 0))", monitorID)
		conn.Close()
	}

	return release, nil
}

// CommitRun atomically records the outcome of a successful extraction:
// current_state always advances; when item is non-nil the alert fired, so
// last_alert_state advances and the feed item is inserted in the same
// transaction. advanceBaseline moves last_alert_state without publishing.
func (r *MonitorRepository) CommitRun(ctx context.Context, monitorID string, snapshot *models.Snapshot, advanceBaseline bool, item *models.FeedItem) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer tx.Rollback()

	advanceAlertState := advanceBaseline || item != nil

	query := `
		UPDATE monitors
		SET current_state = $2,
		    last_alert_state = CASE WHEN $3 THEN $2 ELSE last_alert_state END,
		    last_checked_at = $4,
		    last_error = '',
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, monitorID, snapshotJSON, advanceAlertState, snapshot.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to advance monitor state: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	if item != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO feed_items (id, monitor_id, title, description, link, published_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, item.ID, item.MonitorID, item.Title, item.Description, item.Link, item.PublishedAt)
		if err != nil {
			return fmt.Errorf("failed to insert feed item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// RecordFailure notes a failed run for operator visibility without touching
// current_state or last_alert_state.
func (r *MonitorRepository) RecordFailure(ctx context.Context, monitorID string, runErr error, at time.Time) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE monitors
		SET last_error = $2, last_checked_at = $3, updated_at = NOW()
		WHERE id = $1
	`, monitorID, msg, at)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return requireRow(result)
}

func (r *MonitorRepository) scanMonitor(row *sql.Row) (*models.Monitor, error) {
	var m models.Monitor
	var configJSON []byte
	var currentJSON, lastAlertJSON sql.Null[[]byte]
	var slug sql.NullString
	var lastChecked sql.NullTime

	err := row.Scan(
		&m.ID, &m.OwnerID, &m.URL, &m.Description, &configJSON,
		&currentJSON, &lastAlertJSON,
		&m.AlertMode, &m.ResetPolicy, &m.IntervalMin, &m.Public, &slug,
		&lastChecked, &m.LastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan monitor: %w", err)
	}

	if err := hydrateMonitor(&m, configJSON, currentJSON, lastAlertJSON, slug, lastChecked); err != nil {
		return nil, err
	}

	return &m, nil
}

func collectMonitors(rows *sql.Rows) ([]models.Monitor, error) {
	var monitors []models.Monitor

	for rows.Next() {
		var m models.Monitor
		var configJSON []byte
		var currentJSON, lastAlertJSON sql.Null[[]byte]
		var slug sql.NullString
		var lastChecked sql.NullTime

		err := rows.Scan(
			&m.ID, &m.OwnerID, &m.URL, &m.Description, &configJSON,
			&currentJSON, &lastAlertJSON,
			&m.AlertMode, &m.ResetPolicy, &m.IntervalMin, &m.Public, &slug,
			&lastChecked, &m.LastError, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor row: %w", err)
		}

		if err := hydrateMonitor(&m, configJSON, currentJSON, lastAlertJSON, slug, lastChecked); err != nil {
			return nil, err
		}

		monitors = append(monitors, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read monitor rows: %w", err)
	}

	return monitors, nil
}

func hydrateMonitor(m *models.Monitor, configJSON []byte, currentJSON, lastAlertJSON sql.Null[[]byte], slug sql.NullString, lastChecked sql.NullTime) error {
	if err := json.Unmarshal(configJSON, &m.Config); err != nil {
		return fmt.Errorf("failed to unmarshal config for monitor %s: %w", m.ID, err)
	}

	if currentJSON.Valid {
		m.CurrentState = &models.Snapshot{}
		if err := json.Unmarshal(currentJSON.V, m.CurrentState); err != nil {
			return fmt.Errorf("failed to unmarshal current state for monitor %s: %w", m.ID, err)
		}
	}

	if lastAlertJSON.Valid {
		m.LastAlertState = &models.Snapshot{}
		if err := json.Unmarshal(lastAlertJSON.V, m.LastAlertState); err != nil {
			return fmt.Errorf("failed to unmarshal last alert state for monitor %s: %w", m.ID, err)
		}
	}

	if slug.Valid {
		m.Slug = slug.String
	}
	if lastChecked.Valid {
		t := lastChecked.Time
		m.LastCheckedAt = &t
	}

	return nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
