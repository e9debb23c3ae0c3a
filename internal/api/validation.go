package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/watcherhq/watcher/internal/models"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateURL validates a URL string
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return ValidationError{Field: "url", Message: "URL is required"}
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return ValidationError{Field: "url", Message: "Invalid URL format"}
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}

	if parsedURL.Host == "" {
		return ValidationError{Field: "url", Message: "URL must have a host"}
	}

	return nil
}

// ValidateCredentials validates registration input.
func ValidateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return ValidationError{Field: "email", Message: "A valid email address is required"}
	}

	if len(password) < 8 {
		return ValidationError{Field: "password", Message: "Password must be at least 8 characters"}
	}

	return nil
}

// ValidateMonitorRequest validates the user-settable monitor fields.
func ValidateMonitorRequest(m *models.Monitor) error {
	if err := ValidateURL(m.URL); err != nil {
		return err
	}

	switch m.AlertMode {
	case models.AlertOnce, models.AlertOnChange:
	default:
		return ValidationError{Field: "alert_mode", Message: "Alert mode must be 'once' or 'on_change'"}
	}

	switch m.ResetPolicy {
	case models.ResetManual, models.ResetOnFalsey:
	default:
		return ValidationError{Field: "reset_policy", Message: "Reset policy must be 'manual' or 'on_falsey'"}
	}

	if !models.ValidInterval(m.IntervalMin) {
		return ValidationError{Field: "interval_minutes",
			Message: fmt.Sprintf("Check interval must be one of %v minutes", models.ScrapeIntervals)}
	}

	if m.Public && m.Slug == "" {
		return ValidationError{Field: "slug", Message: "Public monitors require a slug"}
	}

	if m.Slug != "" && !validSlug(m.Slug) {
		return ValidationError{Field: "slug", Message: "Slug may only contain lowercase letters, digits and hyphens"}
	}

	if err := m.Config.Validate(); err != nil {
		return ValidationError{Field: "config", Message: err.Error()}
	}

	return nil
}

func validSlug(slug string) bool {
	if len(slug) < 3 || len(slug) > 64 {
		return false
	}
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
