package api

import (
	"context"
	"encoding/xml"
	"errors"
	"html"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/watcherhq/watcher/internal/auth"
	"github.com/watcherhq/watcher/internal/database"
	"github.com/watcherhq/watcher/internal/models"
)

// RSSHandler renders monitor alert feeds as RSS 2.0.
type RSSHandler struct {
	monitors MonitorQueryInterface
	items    ItemQueryInterface
	logger   *slog.Logger
}

// MonitorQueryInterface defines the minimal interface needed for resolving
// feed monitors. Satisfied by database.MonitorRepository.
type MonitorQueryInterface interface {
	GetByID(ctx context.Context, id string) (*models.Monitor, error)
	GetBySlug(ctx context.Context, slug string) (*models.Monitor, error)
}

// ItemQueryInterface defines the minimal interface needed for listing a
// monitor's alert items. Satisfied by database.FeedItemRepository.
type ItemQueryInterface interface {
	ListByMonitor(ctx context.Context, monitorID string, limit int) ([]models.FeedItem, error)
}

// NewRSSHandler creates a new RSS handler.
func NewRSSHandler(monitors MonitorQueryInterface, items ItemQueryInterface, logger *slog.Logger) *RSSHandler {
	return &RSSHandler{
		monitors: monitors,
		items:    items,
		logger:   logger,
	}
}

// RSS 2.0 feed structures
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel *Channel `xml:"channel"`
}

type Channel struct {
	Title         string  `xml:"title"`
	Link          string  `xml:"link"`
	Description   string  `xml:"description"`
	Language      string  `xml:"language,omitempty"`
	LastBuildDate string  `xml:"lastBuildDate,omitempty"`
	Items         []*Item `xml:"item"`
}

type Item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        GUID   `xml:"guid"`
}

// GUID carries the alert item's identity. Item IDs are opaque, not URLs, so
// isPermaLink is always false.
type GUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// HandlePublicFeed serves GET /feeds/{slug}.rss for public monitors. No
// authentication: the slug is the capability.
func (h *RSSHandler) HandlePublicFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	slug := strings.TrimPrefix(r.URL.Path, "/feeds/")
	slug = strings.TrimSuffix(slug, ".rss")
	if slug == "" || strings.Contains(slug, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	m, err := h.monitors.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, "Feed not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load public monitor", "slug", slug, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.serveFeed(w, r, m)
}

// HandleOwnerFeed serves GET /api/monitors/{id}/feed.rss for the monitor's
// owner, public or not.
func (h *RSSHandler) HandleOwnerFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/monitors/")
	id := strings.TrimSuffix(rest, "/feed.rss")

	userID, _ := auth.GetUserIDFromContext(r.Context())

	m, err := h.monitors.GetByID(r.Context(), id)
	if err != nil || m.OwnerID != userID {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return
	}

	h.serveFeed(w, r, m)
}

// serveFeed writes the 20 most recent alert items as an RSS 2.0 document.
func (h *RSSHandler) serveFeed(w http.ResponseWriter, r *http.Request, m *models.Monitor) {
	items, err := h.items.ListByMonitor(r.Context(), m.ID, 20)
	if err != nil {
		h.logger.Error("failed to list feed items", "monitor_id", m.ID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	title := m.Description
	if title == "" {
		title = m.URL
	}

	feed := &RSS{
		Version: "2.0",
		Channel: &Channel{
			Title:         "Watcher: " + title,
			Link:          m.URL,
			Description:   "Change alerts for " + m.URL,
			Language:      "en-us",
			LastBuildDate: time.Now().Format(time.RFC1123Z),
			Items:         make([]*Item, 0, len(items)),
		},
	}

	for _, it := range items {
		feed.Channel.Items = append(feed.Channel.Items, &Item{
			Title:       it.Title,
			Link:        it.Link,
			Description: html.EscapeString(it.Description),
			PubDate:     it.PublishedAt.Format(time.RFC1123Z),
			GUID:        GUID{Value: it.ID},
		})
	}

	// Set content type to RSS XML
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	// Write XML declaration and encode feed
	w.Write([]byte(xml.Header))
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(feed); err != nil {
		h.logger.Error("failed to encode RSS feed", "error", err)
	}
}
