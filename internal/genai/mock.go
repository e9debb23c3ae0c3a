package genai

import (
	"context"
	"strings"

	"github.com/watcherhq/watcher/internal/models"
)

// MockGenerator provides a deterministic Generator for tests and for degraded
// startup when no API key is configured.
type MockGenerator struct {
	// Config, when set, is returned from GenerateConfig.
	Config *models.ExtractionConfig

	// ConfigErr / SummaryErr force the corresponding call to fail.
	ConfigErr  error
	SummaryErr error

	// Summary overrides the rule-based summary.
	Summary string

	// Calls counts GenerateSummary invocations.
	Calls int
}

// NewMockGenerator creates a mock that behaves like a well-functioning
// service with rule-based output.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// GenerateConfig returns the preset config, or a single text rule watching
// the page body when none was set.
func (m *MockGenerator) GenerateConfig(ctx context.Context, url, description string) (models.ExtractionConfig, error) {
	if m.ConfigErr != nil {
		return models.ExtractionConfig{}, m.ConfigErr
	}
	if m.Config != nil {
		return *m.Config, nil
	}

	return models.ExtractionConfig{Fields: []models.FieldRule{
		{Name: "content", Selector: "body", Kind: models.SelectorCSS, Normalize: models.NormalizeText},
	}}, nil
}

// GenerateSummary renders a rule-based sentence from the diff.
func (m *MockGenerator) GenerateSummary(ctx context.Context, diff models.Diff) (string, error) {
	m.Calls++
	if m.SummaryErr != nil {
		return "", m.SummaryErr
	}
	if m.Summary != "" {
		return m.Summary, nil
	}

	parts := make([]string, 0, len(diff))
	for _, c := range diff {
		switch c.Kind {
		case models.ChangeAdded:
			parts = append(parts, c.Field+" appeared")
		case models.ChangeRemoved:
			parts = append(parts, c.Field+" disappeared")
		default:
			parts = append(parts, c.Field+" is now "+c.New)
		}
	}
	return strings.Join(parts, ", "), nil
}
