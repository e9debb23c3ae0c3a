package models

import (
	"fmt"
	"net/url"
	"time"
)

// Monitor represents a user-configured watch on a single webpage: the target
// URL, the extraction rules derived from the user's description, and the
// alerting state the pipeline maintains across runs.
type Monitor struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"owner_id"`
	URL            string           `json:"url"`
	Description    string           `json:"description"`
	Config         ExtractionConfig `json:"config"`
	CurrentState   *Snapshot        `json:"current_state,omitempty"`
	LastAlertState *Snapshot        `json:"last_alert_state,omitempty"`
	AlertMode      AlertMode        `json:"alert_mode"`
	ResetPolicy    ResetPolicy      `json:"reset_policy"`
	IntervalMin    int              `json:"interval_minutes"`
	Public         bool             `json:"public"`
	Slug           string           `json:"slug,omitempty"`
	LastCheckedAt  *time.Time       `json:"last_checked_at,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// AlertMode controls when a monitor fires an alert.
type AlertMode string

const (
	// AlertOnce fires the first time a field transitions into a configured
	// truthy state and stays silent until the alert state is reset.
	AlertOnce AlertMode = "once"

	// AlertOnChange fires whenever the extracted state differs from the
	// state at the time of the last alert.
	AlertOnChange AlertMode = "on_change"
)

// ResetPolicy controls when a monitor in "once" mode becomes eligible to
// fire again.
type ResetPolicy string

const (
	// ResetManual requires an explicit owner action to clear the alert state.
	ResetManual ResetPolicy = "manual"

	// ResetOnFalsey clears the alert state automatically once every
	// previously-truthy field has left its truthy set.
	ResetOnFalsey ResetPolicy = "on_falsey"
)

// ScrapeIntervals is the enumerated set of allowed check intervals, in minutes.
var ScrapeIntervals = []int{5, 15, 30, 60, 180, 360, 720, 1440}

// ValidInterval reports whether minutes is one of the allowed check intervals.
func ValidInterval(minutes int) bool {
	for _, m := range ScrapeIntervals {
		if m == minutes {
			return true
		}
	}
	return false
}

// Validate checks the monitor's user-settable fields.
func (m *Monitor) Validate() error {
	u, err := url.Parse(m.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid monitor url: %q", m.URL)
	}

	switch m.AlertMode {
	case AlertOnce, AlertOnChange:
	default:
		return fmt.Errorf("invalid alert mode: %q", m.AlertMode)
	}

	switch m.ResetPolicy {
	case ResetManual, ResetOnFalsey:
	default:
		return fmt.Errorf("invalid reset policy: %q", m.ResetPolicy)
	}

	if !ValidInterval(m.IntervalMin) {
		return fmt.Errorf("invalid scrape interval: %d minutes", m.IntervalMin)
	}

	if m.Public && m.Slug == "" {
		return fmt.Errorf("public monitor requires a slug")
	}

	return m.Config.Validate()
}

// Due reports whether the monitor is due for another check at the given time.
func (m *Monitor) Due(now time.Time) bool {
	if m.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*m.LastCheckedAt) >= time.Duration(m.IntervalMin)*time.Minute
}
