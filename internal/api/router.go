package api

import (
	"database/sql"
	"net/http"
	"strings"

	"log/slog"

	"github.com/watcherhq/watcher/internal/auth"
	"github.com/watcherhq/watcher/internal/browser"
	"github.com/watcherhq/watcher/internal/database"
	"github.com/watcherhq/watcher/internal/genai"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	mux *http.ServeMux,
	db *sql.DB,
	monitorRepo *database.MonitorRepository,
	itemRepo *database.FeedItemRepository,
	runLogRepo *database.RunLogRepository,
	userRepo *database.UserRepository,
	generator genai.Generator,
	runner MonitorRunner,
	pool *browser.Pool,
	authConfig auth.Config,
	logger *slog.Logger,
) {
	authHandler := NewAuthHandler(userRepo, authConfig, logger)
	monitorHandler := NewMonitorHandler(monitorRepo, runLogRepo, generator, runner, logger)
	feedHandler := NewFeedHandler(itemRepo, logger)
	rssHandler := NewRSSHandler(monitorRepo, itemRepo, logger)
	systemHandler := NewSystemHandler(db, pool, logger)

	// Auth middleware
	authMiddleware := auth.Middleware(authConfig)
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authMiddleware(h).ServeHTTP(w, r)
		}
	}

	// Authentication routes (public)
	mux.HandleFunc("/api/auth/register", authHandler.Register)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/validate", protect(authHandler.ValidateToken))

	// Monitor routes (owner only)
	mux.HandleFunc("/api/monitors", protect(monitorHandler.HandleMonitors))
	mux.HandleFunc("/api/monitors/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/feed.rss") {
			protect(rssHandler.HandleOwnerFeed)(w, r)
			return
		}
		protect(monitorHandler.HandleMonitorByID)(w, r)
	})

	// Config generation (owner only)
	mux.HandleFunc("/api/generate-config", protect(monitorHandler.GenerateConfig))

	// Alert item routes (owner only)
	mux.HandleFunc("/api/items", protect(feedHandler.HandleItems))
	mux.HandleFunc("/api/items/", protect(feedHandler.HandleItemState))

	// Public RSS feeds by slug
	mux.HandleFunc("/feeds/", rssHandler.HandlePublicFeed)

	// System routes
	mux.HandleFunc("/healthz", systemHandler.HandleHealth)
	mux.HandleFunc("/api/stats", protect(systemHandler.HandleStats))
}
