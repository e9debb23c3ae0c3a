package api

import (
	"strings"
	"testing"

	"github.com/watcherhq/watcher/internal/models"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://example.com/page", false},
		{"valid http", "http://example.com", false},
		{"empty", "", true},
		{"no scheme", "example.com/page", true},
		{"ftp scheme", "ftp://example.com", true},
		{"no host", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	if err := ValidateCredentials("user@example.com", "longenough"); err != nil {
		t.Errorf("valid credentials rejected: %v", err)
	}
	if err := ValidateCredentials("not-an-email", "longenough"); err == nil {
		t.Error("invalid email accepted")
	}
	if err := ValidateCredentials("user@example.com", "short"); err == nil {
		t.Error("short password accepted")
	}
}

func validMonitor() *models.Monitor {
	return &models.Monitor{
		URL:         "https://example.com",
		AlertMode:   models.AlertOnChange,
		ResetPolicy: models.ResetManual,
		IntervalMin: 60,
		Config: models.ExtractionConfig{Fields: []models.FieldRule{
			{Name: "status", Selector: ".status", Kind: models.SelectorCSS, Normalize: models.NormalizeLower},
		}},
	}
}

func TestValidateMonitorRequest(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.Monitor)
		wantField string
	}{
		{"valid", func(m *models.Monitor) {}, ""},
		{"bad url", func(m *models.Monitor) { m.URL = "nope" }, "url"},
		{"bad mode", func(m *models.Monitor) { m.AlertMode = "sometimes" }, "alert_mode"},
		{"bad reset policy", func(m *models.Monitor) { m.ResetPolicy = "never" }, "reset_policy"},
		{"off-menu interval", func(m *models.Monitor) { m.IntervalMin = 42 }, "interval_minutes"},
		{"public without slug", func(m *models.Monitor) { m.Public = true }, "slug"},
		{"slug with spaces", func(m *models.Monitor) { m.Slug = "my feed" }, "slug"},
		{"slug uppercase", func(m *models.Monitor) { m.Slug = "MyFeed" }, "slug"},
		{"valid public", func(m *models.Monitor) { m.Public = true; m.Slug = "shop-status" }, ""},
		{"empty config", func(m *models.Monitor) { m.Config.Fields = nil }, "config"},
		{"bad selector", func(m *models.Monitor) { m.Config.Fields[0].Selector = "div[" }, "config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMonitor()
			tt.mutate(m)

			err := ValidateMonitorRequest(m)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("expected validation error")
			}
			verr, ok := err.(ValidationError)
			if !ok || verr.Field != tt.wantField {
				t.Errorf("error = %v, want field %q", err, tt.wantField)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationError{Field: "url", Message: "URL is required"}
	if !strings.Contains(err.Error(), "url") || !strings.Contains(err.Error(), "URL is required") {
		t.Errorf("Error() = %q", err.Error())
	}
}
