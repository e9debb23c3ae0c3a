package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/watcherhq/watcher/internal/browser"
	"github.com/watcherhq/watcher/internal/database"
)

// SystemHandler serves health and operational stats endpoints.
type SystemHandler struct {
	db     *sql.DB
	pool   *browser.Pool
	logger *slog.Logger
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(db *sql.DB, pool *browser.Pool, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		db:     db,
		pool:   pool,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
func (h *SystemHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := database.HealthCheck(r.Context(), h.db); err != nil {
		h.logger.Error("health check failed", "error", err)
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleStats handles GET /api/stats
func (h *SystemHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"time":             time.Now().UTC(),
		"database":         database.Stats(h.db),
		"renderers_in_use": h.pool.InUse(),
	}

	var monitorCount, itemCount int
	if err := h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM monitors").Scan(&monitorCount); err == nil {
		stats["monitors"] = monitorCount
	}
	if err := h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM feed_items").Scan(&itemCount); err == nil {
		stats["feed_items"] = itemCount
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
