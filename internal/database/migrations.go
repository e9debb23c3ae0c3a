package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations are applied in order; each entry runs exactly once, tracked in
// schema_migrations by version.
var migrations = []struct {
	version string
	sql     string
}{
	{
		version: "001_create_users",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`,
	},
	{
		version: "002_create_monitors",
		sql: `
			CREATE TABLE IF NOT EXISTS monitors (
				id UUID PRIMARY KEY,
				owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				url TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				config JSONB NOT NULL,
				current_state JSONB,
				last_alert_state JSONB,
				alert_mode TEXT NOT NULL DEFAULT 'on_change',
				reset_policy TEXT NOT NULL DEFAULT 'manual',
				interval_minutes INT NOT NULL DEFAULT 60,
				public BOOLEAN NOT NULL DEFAULT FALSE,
				slug TEXT UNIQUE,
				last_checked_at TIMESTAMPTZ,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`,
	},
	{
		version: "003_create_feed_items",
		sql: `
			CREATE TABLE IF NOT EXISTS feed_items (
				id UUID PRIMARY KEY,
				monitor_id UUID NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				description TEXT NOT NULL,
				link TEXT NOT NULL,
				published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_feed_items_monitor ON feed_items(monitor_id, published_at DESC)
		`,
	},
	{
		version: "004_create_feed_item_states",
		sql: `
			CREATE TABLE IF NOT EXISTS feed_item_states (
				item_id UUID NOT NULL REFERENCES feed_items(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				read BOOLEAN NOT NULL DEFAULT FALSE,
				starred BOOLEAN NOT NULL DEFAULT FALSE,
				PRIMARY KEY (item_id, user_id)
			)
		`,
	},
	{
		version: "005_create_run_log",
		sql: `
			CREATE TABLE IF NOT EXISTS run_log (
				id BIGSERIAL PRIMARY KEY,
				monitor_id UUID NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
				started_at TIMESTAMPTZ NOT NULL,
				duration_ms BIGINT NOT NULL,
				result TEXT NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				fired BOOLEAN NOT NULL DEFAULT FALSE
			);
			CREATE INDEX IF NOT EXISTS idx_run_log_monitor ON run_log(monitor_id, started_at DESC)
		`,
	},
	{
		version: "006_monitors_due_index",
		sql: `
			CREATE INDEX IF NOT EXISTS idx_monitors_due ON monitors(last_checked_at)
		`,
	},
}

// RunMigrations applies all pending schema migrations.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	logger.Info("checking for pending database migrations")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	pending := 0
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		logger.Info("applying migration", "version", m.version)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.version, err)
		}

		pending++
	}

	if pending > 0 {
		logger.Info("migrations applied", "count", pending)
	} else {
		logger.Info("database schema up to date")
	}

	return nil
}
