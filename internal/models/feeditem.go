package models

import (
	"time"
)

// FeedItem is one published alert event. Its ID is the stable GUID used for
// feed-entry identity and for downstream per-user read/star state, so an
// alert must never produce two items and a retried run must never mint a
// second ID for the same alert.
type FeedItem struct {
	ID          string    `json:"id"`
	MonitorID   string    `json:"monitor_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
}

// FeedItemState carries a user's read/star flags for a feed item.
type FeedItemState struct {
	ItemID  string `json:"item_id"`
	UserID  string `json:"user_id"`
	Read    bool   `json:"read"`
	Starred bool   `json:"starred"`
}
