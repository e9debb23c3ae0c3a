package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/watcherhq/watcher/internal/models"
)

func TestParseConfigResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    *models.ExtractionConfig
		wantErr error
	}{
		{
			name: "valid response",
			raw:  `{"fields":[{"name":"status","selector":".badge","kind":"css","normalize":"lower","truthy":["open"]}]}`,
			want: &models.ExtractionConfig{Fields: []models.FieldRule{
				{Name: "status", Selector: ".badge", Kind: models.SelectorCSS, Normalize: models.NormalizeLower, Truthy: []string{"open"}},
			}},
		},
		{
			name: "markdown fenced response is tolerated",
			raw:  "```json\n{\"fields\":[{\"name\":\"price\",\"selector\":\"//span[@id='price']\",\"kind\":\"xpath\",\"normalize\":\"number\"}]}\n```",
			want: &models.ExtractionConfig{Fields: []models.FieldRule{
				{Name: "price", Selector: "//span[@id='price']", Kind: models.SelectorXPath, Normalize: models.NormalizeNumber},
			}},
		},
		{
			name:    "not json",
			raw:     "here is your config: status -> .badge",
			wantErr: ErrInvalidGeneratedConfig,
		},
		{
			name:    "json but fails schema validation",
			raw:     `{"fields":[{"name":"status","selector":".badge","kind":"regex","normalize":"lower"}]}`,
			wantErr: ErrInvalidGeneratedConfig,
		},
		{
			name:    "empty fields list",
			raw:     `{"fields":[]}`,
			wantErr: ErrInvalidGeneratedConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigResponse(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseConfigResponse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfigResponse() unexpected error: %v", err)
			}
			if diff := cmp.Diff(*tt.want, got); diff != "" {
				t.Errorf("ParseConfigResponse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSummaryOrFallback(t *testing.T) {
	ctx := context.Background()
	diff := models.Diff{
		{Field: "status", Old: "closed", New: "open", Kind: models.ChangeModified},
	}

	t.Run("uses generated summary when available", func(t *testing.T) {
		gen := &MockGenerator{Summary: "The venue just opened."}
		got := SummaryOrFallback(ctx, gen, diff, nil)
		if got != "The venue just opened." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("falls back to rendered diff on error", func(t *testing.T) {
		gen := &MockGenerator{SummaryErr: ErrServiceUnavailable}
		got := SummaryOrFallback(ctx, gen, diff, nil)
		if got != diff.Render() {
			t.Errorf("got %q, want fallback %q", got, diff.Render())
		}
	})

	t.Run("falls back when generator is nil", func(t *testing.T) {
		got := SummaryOrFallback(ctx, nil, diff, nil)
		if got != diff.Render() {
			t.Errorf("got %q, want fallback %q", got, diff.Render())
		}
	})

	t.Run("falls back on empty summary", func(t *testing.T) {
		gen := NewMockGenerator()
		got := SummaryOrFallback(ctx, gen, models.Diff{{Field: "x", Kind: models.ChangeModified, New: "1"}}, nil)
		if got == "" {
			t.Error("fallback summary must never be empty for a non-empty diff")
		}
	})
}

func TestMockGenerator_GenerateConfigValidates(t *testing.T) {
	cfg, err := NewMockGenerator().GenerateConfig(context.Background(), "https://example.com", "watch the page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("mock config must pass validation: %v", err)
	}
}
