package models

import (
	"time"
)

// Run results recorded in the run log.
const (
	RunResultOK      = "ok"
	RunResultTimeout = "timeout"
	RunResultFailed  = "failed"
	RunResultSkipped = "skipped"
)

// RunRecord is one scheduler execution of a monitor.
type RunRecord struct {
	ID        int64         `json:"id"`
	MonitorID string        `json:"monitor_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Result    string        `json:"result"`
	Error     string        `json:"error,omitempty"`
	Fired     bool          `json:"fired"`
}

// RunStats aggregates a monitor's recent run history.
type RunStats struct {
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Alerts      int           `json:"alerts"`
	AvgDuration time.Duration `json:"avg_duration"`
	LastRunAt   time.Time     `json:"last_run_at,omitzero"`
}
