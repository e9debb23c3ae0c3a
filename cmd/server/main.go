package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/watcherhq/watcher/internal/api"
	"github.com/watcherhq/watcher/internal/auth"
	"github.com/watcherhq/watcher/internal/browser"
	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/database"
	"github.com/watcherhq/watcher/internal/extractor"
	"github.com/watcherhq/watcher/internal/genai"
	"github.com/watcherhq/watcher/internal/logging"
	"github.com/watcherhq/watcher/internal/metrics"
	"github.com/watcherhq/watcher/internal/pipeline"
	"github.com/watcherhq/watcher/internal/scheduler"
	"github.com/watcherhq/watcher/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting watcher")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Create repositories
	monitorRepo := database.NewMonitorRepository(db)
	itemRepo := database.NewFeedItemRepository(db)
	runLogRepo := database.NewRunLogRepository(db)
	userRepo := database.NewUserRepository(db)

	// Config generation: fall back to the rule-based mock when no API key is
	// configured so the app stays usable with manual configs.
	var generator genai.Generator
	openaiGen, err := genai.NewOpenAIGenerator(cfg.OpenAI, logger)
	if err != nil {
		logger.Warn("config generation degraded to rule-based mock", "error", err)
		generator = genai.NewMockGenerator()
	} else {
		logger.Info("using OpenAI config generation", "model", cfg.OpenAI.Model)
		generator = openaiGen
	}

	// Browser pool: renderers are started lazily on first use.
	pool := browser.NewPool(cfg.Browser.PoolSize, cfg.Browser.AcquireWait, func() (browser.Renderer, error) {
		return browser.NewChromeRenderer(cfg.Browser)
	}, logger)
	defer pool.Close()

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}
	if err := collector.RegisterPoolGauge(pool.InUse); err != nil {
		logger.Error("failed to register pool gauge", "error", err)
		os.Exit(1)
	}

	ext := extractor.New(logger)
	dispatcher := pipeline.NewDispatcher(monitorRepo, runLogRepo, pool, ext, generator, collector, logger)

	// Start the monitor scheduler
	sched := scheduler.New(monitorRepo, dispatcher, runLogRepo, cfg.Scheduler, logger)
	go sched.Start(ctx)

	// Load auth configuration
	authConfig := auth.LoadConfigFromEnv()
	logger.Info("auth configured", "jwt_secret_set", authConfig.JWTSecret != "change-this-secret")

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	logger.Info("setting up REST API")
	api.SetupRoutes(mux, db, monitorRepo, itemRepo, runLogRepo, userRepo, generator, dispatcher, pool, authConfig, logger)

	// Wrap with SPA middleware to serve the frontend for non-API routes
	logger.Info("setting up static file server for web UI")
	handler := server.SPAMiddleware(collector.InstrumentHandler(mux), "./web/dist", "./web/dist/index.html")

	// Start server
	srv := server.New(cfg.Server, logger, handler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("watcher started successfully")
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	cancel()
	sched.Stop()
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
