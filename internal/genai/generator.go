package genai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/watcherhq/watcher/internal/models"
)

// Generator turns a natural-language description into a structured extraction
// config and renders change summaries. The underlying service is treated as
// unreliable: callers must handle both error kinds and fall back to manual
// configuration.
type Generator interface {
	// GenerateConfig derives an extraction config for the page at url from
	// the user's free-text description. The returned config always passes
	// models.ExtractionConfig.Validate.
	GenerateConfig(ctx context.Context, url, description string) (models.ExtractionConfig, error)

	// GenerateSummary produces a short human-readable summary of the diff.
	GenerateSummary(ctx context.Context, diff models.Diff) (string, error)
}

var (
	// ErrServiceUnavailable indicates the generation service could not be
	// reached or timed out. The caller should offer manual config entry.
	ErrServiceUnavailable = errors.New("config generation service unavailable")

	// ErrInvalidGeneratedConfig indicates the service responded but its
	// output did not validate against the config schema.
	ErrInvalidGeneratedConfig = errors.New("generated config failed validation")
)

// SummaryOrFallback resolves a summary for the diff, never failing: when the
// generator errors (or is nil), it falls back to the deterministic rendering
// of the diff so alert publication is never blocked on the model.
func SummaryOrFallback(ctx context.Context, gen Generator, diff models.Diff, logger *slog.Logger) string {
	if gen == nil {
		return diff.Render()
	}

	summary, err := gen.GenerateSummary(ctx, diff)
	if err != nil || summary == "" {
		if logger != nil {
			logger.Warn("summary generation failed, using fallback", "error", err)
		}
		return diff.Render()
	}

	return summary
}
