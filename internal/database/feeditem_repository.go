package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/watcherhq/watcher/internal/models"
)

// FeedItemRepository handles published alert items and per-user read/star
// state.
type FeedItemRepository struct {
	db *sql.DB
}

// NewFeedItemRepository creates a new feed item repository.
func NewFeedItemRepository(db *sql.DB) *FeedItemRepository {
	return &FeedItemRepository{db: db}
}

// ListByMonitor returns a monitor's items, newest first.
func (r *FeedItemRepository) ListByMonitor(ctx context.Context, monitorID string, limit int) ([]models.FeedItem, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, monitor_id, title, description, link, published_at
		FROM feed_items
		WHERE monitor_id = $1
		ORDER BY published_at DESC
		LIMIT $2
	`, monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed items: %w", err)
	}
	defer rows.Close()

	return collectFeedItems(rows)
}

// ListByOwner returns items across all of a user's monitors, newest first.
func (r *FeedItemRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.FeedItem, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT fi.id, fi.monitor_id, fi.title, fi.description, fi.link, fi.published_at
		FROM feed_items fi
		JOIN monitors m ON m.id = fi.monitor_id
		WHERE m.owner_id = $1
		ORDER BY fi.published_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed items: %w", err)
	}
	defer rows.Close()

	return collectFeedItems(rows)
}

// GetState returns a user's read/star flags for an item, defaulting to
// unread/unstarred when no row exists.
func (r *FeedItemRepository) GetState(ctx context.Context, itemID, userID string) (*models.FeedItemState, error) {
	state := &models.FeedItemState{ItemID: itemID, UserID: userID}

	err := r.db.QueryRowContext(ctx, `
		SELECT read, starred FROM feed_item_states
		WHERE item_id = $1 AND user_id = $2
	`, itemID, userID).Scan(&state.Read, &state.Starred)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed item state: %w", err)
	}

	return state, nil
}

// SetState upserts a user's read/star flags for an item.
func (r *FeedItemRepository) SetState(ctx context.Context, state *models.FeedItemState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_item_states (item_id, user_id, read, starred)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id, user_id)
		DO UPDATE SET read = EXCLUDED.read, starred = EXCLUDED.starred
	`, state.ItemID, state.UserID, state.Read, state.Starred)
	if err != nil {
		return fmt.Errorf("failed to set feed item state: %w", err)
	}
	return nil
}

func collectFeedItems(rows *sql.Rows) ([]models.FeedItem, error) {
	var items []models.FeedItem

	for rows.Next() {
		var item models.FeedItem
		err := rows.Scan(&item.ID, &item.MonitorID, &item.Title, &item.Description, &item.Link, &item.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feed item rows: %w", err)
	}

	return items, nil
}
