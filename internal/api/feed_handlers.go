package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/watcherhq/watcher/internal/auth"
	"github.com/watcherhq/watcher/internal/database"
	"github.com/watcherhq/watcher/internal/models"
)

// FeedHandler serves a user's alert items and their read/star state.
type FeedHandler struct {
	items  *database.FeedItemRepository
	logger *slog.Logger
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(items *database.FeedItemRepository, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		items:  items,
		logger: logger,
	}
}

// ItemStateRequest carries read/star flags for one item.
type ItemStateRequest struct {
	Read    bool `json:"read"`
	Starred bool `json:"starred"`
}

// HandleItems handles GET /api/items
func (h *FeedHandler) HandleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _ := auth.GetUserIDFromContext(r.Context())

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	items, err := h.items.ListByOwner(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list feed items", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if items == nil {
		items = []models.FeedItem{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(items); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// HandleItemState handles GET and PUT /api/items/{id}/state
func (h *FeedHandler) HandleItemState(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/items/")
	itemID, action, _ := strings.Cut(rest, "/")
	if itemID == "" || action != "state" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	userID, _ := auth.GetUserIDFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		state, err := h.items.GetState(r.Context(), itemID, userID)
		if err != nil {
			h.logger.Error("failed to get item state", "item_id", itemID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.writeState(w, state)

	case http.MethodPut:
		var req ItemStateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		state := &models.FeedItemState{
			ItemID:  itemID,
			UserID:  userID,
			Read:    req.Read,
			Starred: req.Starred,
		}
		if err := h.items.SetState(r.Context(), state); err != nil {
			h.logger.Error("failed to set item state", "item_id", itemID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.writeState(w, state)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *FeedHandler) writeState(w http.ResponseWriter, state *models.FeedItemState) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
