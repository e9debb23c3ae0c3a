package genai

import (
	"fmt"
	"strings"

	"github.com/watcherhq/watcher/internal/models"
)

// PromptTemplates holds the system and user prompt templates for config
// generation and change summaries.
type PromptTemplates struct {
	ConfigSystemPrompt  string
	SummarySystemPrompt string
}

// NewPromptTemplates creates the default prompt set.
func NewPromptTemplates() *PromptTemplates {
	return &PromptTemplates{
		ConfigSystemPrompt:  buildConfigSystemPrompt(),
		SummarySystemPrompt: buildSummarySystemPrompt(),
	}
}

func buildConfigSystemPrompt() string {
	return `CRITICAL: You MUST output ONLY valid JSON. Do not include any text before or after the JSON object. Do not wrap it in markdown code blocks.

You translate a user's plain-English description of "the thing I want to watch on this webpage" into a structured extraction config.

Each field you emit must have:
- "name": a short snake_case identifier for the field
- "selector": a CSS selector or XPath expression locating the element
- "kind": "css" or "xpath"
- "normalize": one of "none", "trim", "lower", "text", "number"
  - "text" strips markup and collapses whitespace
  - "number" keeps only digits, sign, and decimal point
- "truthy": OPTIONAL array of normalized values that mean "the condition the
  user cares about is met" (e.g. ["open"], ["in stock", "available"]).
  Include it ONLY when the description clearly names a condition.

Guidelines:
- Prefer stable selectors: ids, semantic class names, data attributes.
- Avoid positional selectors (nth-child) unless nothing better exists.
- Emit the smallest set of fields that covers the description, usually 1-3.
- Normalize aggressively: "lower" or "text" unless the raw casing matters.

Output Format: Your response MUST be ONLY this exact JSON structure:
{
  "fields": [
    {"name": "status", "selector": ".status-badge", "kind": "css", "normalize": "lower", "truthy": ["open"]}
  ]
}`
}

func buildSummarySystemPrompt() string {
	return `You write one-sentence notifications for a page-watching service. Given a list of field changes, describe what changed in plain language, most important change first. Be factual, do not speculate about why. Maximum 200 characters. Output plain text only, no JSON, no markdown.`
}

// BuildConfigPrompt renders the user message for config generation.
func (p *PromptTemplates) BuildConfigPrompt(url, description string) string {
	return fmt.Sprintf("Page URL: %s\n\nWhat the user wants to watch:\n%s", url, description)
}

// BuildSummaryPrompt renders the user message for summary generation.
func (p *PromptTemplates) BuildSummaryPrompt(diff models.Diff) string {
	var b strings.Builder
	b.WriteString("Changes detected:\n")
	for _, c := range diff {
		switch c.Kind {
		case models.ChangeAdded:
			fmt.Fprintf(&b, "- %s appeared with value %q\n", c.Field, c.New)
		case models.ChangeRemoved:
			fmt.Fprintf(&b, "- %s disappeared (was %q)\n", c.Field, c.Old)
		default:
			fmt.Fprintf(&b, "- %s changed from %q to %q\n", c.Field, c.Old, c.New)
		}
	}
	return b.String()
}
