package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/watcherhq/watcher/internal/auth"
	"github.com/watcherhq/watcher/internal/database"
	"github.com/watcherhq/watcher/internal/genai"
	"github.com/watcherhq/watcher/internal/models"
)

// MonitorRunner triggers a pipeline run for one monitor. Satisfied by
// pipeline.Dispatcher.
type MonitorRunner interface {
	RunMonitor(ctx context.Context, monitorID string) error
}

// MonitorStoreInterface defines the monitor persistence surface the handler
// needs. Satisfied by database.MonitorRepository.
type MonitorStoreInterface interface {
	Create(ctx context.Context, m *models.Monitor) error
	GetByID(ctx context.Context, id string) (*models.Monitor, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Monitor, error)
	Update(ctx context.Context, m *models.Monitor) error
	Delete(ctx context.Context, id string) error
	ResetAlertState(ctx context.Context, id string) error
}

// RunLogQueryInterface defines the run history surface the handler needs.
// Satisfied by database.RunLogRepository.
type RunLogQueryInterface interface {
	ListByMonitor(ctx context.Context, monitorID string, limit int) ([]models.RunRecord, error)
	Stats(ctx context.Context, monitorID string, since time.Time) (*models.RunStats, error)
}

// MonitorHandler handles monitor CRUD and run control.
type MonitorHandler struct {
	monitors  MonitorStoreInterface
	runLog    RunLogQueryInterface
	generator genai.Generator
	runner    MonitorRunner
	logger    *slog.Logger
}

// NewMonitorHandler creates a new monitor handler.
func NewMonitorHandler(
	monitors MonitorStoreInterface,
	runLog RunLogQueryInterface,
	generator genai.Generator,
	runner MonitorRunner,
	logger *slog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		monitors:  monitors,
		runLog:    runLog,
		generator: generator,
		runner:    runner,
		logger:    logger,
	}
}

// MonitorRequest carries the user-settable monitor fields. When Config is
// omitted on create, an extraction config is generated from the description.
type MonitorRequest struct {
	URL         string                   `json:"url"`
	Description string                   `json:"description"`
	Config      *models.ExtractionConfig `json:"config,omitempty"`
	AlertMode   models.AlertMode         `json:"alert_mode"`
	ResetPolicy models.ResetPolicy       `json:"reset_policy"`
	IntervalMin int                      `json:"interval_minutes"`
	Public      bool                     `json:"public"`
	Slug        string                   `json:"slug,omitempty"`
}

// GenerateConfigRequest asks for an extraction config without creating a
// monitor, so the user can review and adjust it first.
type GenerateConfigRequest struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// GenerateConfigResponse carries the generated config, or the reason manual
// entry is needed.
type GenerateConfigResponse struct {
	Config    *models.ExtractionConfig `json:"config,omitempty"`
	Generated bool                     `json:"generated"`
	Reason    string                   `json:"reason,omitempty"`
}

// HandleMonitors handles GET and POST /api/monitors
func (h *MonitorHandler) HandleMonitors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listMonitors(w, r)
	case http.MethodPost:
		h.createMonitor(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMonitorByID routes /api/monitors/{id} and its sub-resources.
func (h *MonitorHandler) HandleMonitorByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/monitors/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.Error(w, "Monitor ID required", http.StatusBadRequest)
		return
	}

	m, ok := h.ownedMonitor(w, r, id)
	if !ok {
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.respondJSON(w, http.StatusOK, m)
		case http.MethodPut:
			h.updateMonitor(w, r, m)
		case http.MethodDelete:
			h.deleteMonitor(w, r, m)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "run":
		h.runMonitor(w, r, m)
	case "reset":
		h.resetMonitor(w, r, m)
	case "runs":
		h.listRuns(w, r, m)
	case "stats":
		h.monitorStats(w, r, m)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// GenerateConfig handles POST /api/generate-config. A failing generation
// service degrades to manual config entry instead of erroring the flow.
func (h *MonitorHandler) GenerateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GenerateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := ValidateURL(req.URL); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		http.Error(w, "Description is required", http.StatusBadRequest)
		return
	}

	cfg, err := h.generator.GenerateConfig(r.Context(), req.URL, req.Description)
	if err != nil {
		h.logger.Warn("config generation failed", "url", req.URL, "error", err)

		reason := "The description could not be turned into a valid config; please configure fields manually."
		if errors.Is(err, genai.ErrServiceUnavailable) {
			reason = "The generation service is unavailable; please configure fields manually."
		}

		h.respondJSON(w, http.StatusOK, GenerateConfigResponse{Generated: false, Reason: reason})
		return
	}

	h.respondJSON(w, http.StatusOK, GenerateConfigResponse{Config: &cfg, Generated: true})
}

func (h *MonitorHandler) listMonitors(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())

	monitors, err := h.monitors.ListByOwner(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list monitors", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if monitors == nil {
		monitors = []models.Monitor{}
	}
	h.respondJSON(w, http.StatusOK, monitors)
}

func (h *MonitorHandler) createMonitor(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())

	var req MonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	m := &models.Monitor{
		ID:          uuid.NewString(),
		OwnerID:     userID,
		URL:         req.URL,
		Description: req.Description,
		AlertMode:   req.AlertMode,
		ResetPolicy: req.ResetPolicy,
		IntervalMin: req.IntervalMin,
		Public:      req.Public,
		Slug:        req.Slug,
	}
	if m.AlertMode == "" {
		m.AlertMode = models.AlertOnChange
	}
	if m.ResetPolicy == "" {
		m.ResetPolicy = models.ResetManual
	}

	if req.Config != nil {
		m.Config = *req.Config
	} else {
		cfg, err := h.generator.GenerateConfig(r.Context(), req.URL, req.Description)
		if err != nil {
			h.logger.Warn("config generation failed on create", "url", req.URL, "error", err)
			http.Error(w, "Config generation failed; supply a config manually", http.StatusUnprocessableEntity)
			return
		}
		m.Config = cfg
	}

	if err := ValidateMonitorRequest(m); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.monitors.Create(r.Context(), m); err != nil {
		if errors.Is(err, database.ErrDuplicateSlug) {
			http.Error(w, "Slug already in use", http.StatusConflict)
			return
		}
		h.logger.Error("failed to create monitor", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("monitor created", "monitor_id", m.ID, "url", m.URL)
	h.respondJSON(w, http.StatusCreated, m)
}

func (h *MonitorHandler) updateMonitor(w http.ResponseWriter, r *http.Request, m *models.Monitor) {
	var req MonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	m.URL = req.URL
	m.Description = req.Description
	m.AlertMode = req.AlertMode
	m.ResetPolicy = req.ResetPolicy
	m.IntervalMin = req.IntervalMin
	m.Public = req.Public
	m.Slug = req.Slug
	if req.Config != nil {
		m.Config = *req.Config
	}

	if err := ValidateMonitorRequest(m); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.monitors.Update(r.Context(), m); err != nil {
		if errors.Is(err, database.ErrDuplicateSlug) {
			http.Error(w, "Slug already in use", http.StatusConflict)
			return
		}
		h.logger.Error("failed to update monitor", "monitor_id", m.ID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, m)
}

func (h *MonitorHandler) deleteMonitor(w http.ResponseWriter, r *http.Request, m *models.Monitor) {
	if err := h.monitors.Delete(r.Context(), m.ID); err != nil {
		h.logger.Error("failed to delete monitor", "monitor_id", m.ID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("monitor deleted", "monitor_id", m.ID)
	w.WriteHeader(http.StatusNoContent)
}

// runMonitor handles POST /api/monitors/{id}/run by kicking off a check
// outside the request lifecycle. A run already in flight is not an error.
func (h *MonitorHandler) runMonitor(w http.ResponseWriter, r *http.Request, m *models.Monitor) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		err := h.runner.RunMonitor(ctx, m.ID)
		if err != nil && !errors.Is(err, database.ErrCommitConflict) {
			h.logger.Error("manual run failed", "monitor_id", m.ID, "error", err)
		}
	}()

	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "run started"})
}

func (h *MonitorHandler) resetMonitor(w http.ResponseWriter, r *http.Request, m *models.Monitor) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.monitors.ResetAlertState(r.Context(), m.ID); err != nil {
		h.logger.Error("failed to reset alert state", "monitor_id", m.ID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("alert state reset", "monitor_id", m.ID)
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "alert state reset"})
}

func (h *MonitorHandler) listRuns(w http.ResponseWriter, r *http.Request, m *models.Monitor) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runs, err := h.runLog.ListByMonitor(r.Context(), m.ID, 50)
	if err != nil {
		h.logger.Error("failed to list runs", "monitor_id", m.ID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if runs == nil {
		runs = []models.RunRecord{}
	}
	h.respondJSON(w, http.StatusOK, runs)
}

// monitorStats handles GET /api/monitors/{id}/stats, aggregating the last
// seven days of runs unless ?days adjusts the window.
func (h *MonitorHandler) monitorStats(w http.ResponseWriter, r *http.Request, m *models.Monitor) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 90 {
			http.Error(w, "days must be between 1 and 90", http.StatusBadRequest)
			return
		}
		days = n
	}

	stats, err := h.runLog.Stats(r.Context(), m.ID, time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		h.logger.Error("failed to aggregate run stats", "monitor_id", m.ID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// ownedMonitor loads the monitor and enforces ownership. Monitors belonging
// to other users report not found rather than forbidden.
func (h *MonitorHandler) ownedMonitor(w http.ResponseWriter, r *http.Request, id string) (*models.Monitor, bool) {
	userID, _ := auth.GetUserIDFromContext(r.Context())

	m, err := h.monitors.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			http.Error(w, "Monitor not found", http.StatusNotFound)
		} else {
			h.logger.Error("failed to load monitor", "monitor_id", id, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return nil, false
	}

	if m.OwnerID != userID {
		http.Error(w, "Monitor not found", http.StatusNotFound)
		return nil, false
	}

	return m, true
}

func (h *MonitorHandler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
