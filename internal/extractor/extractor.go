package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/watcherhq/watcher/internal/browser"
	"github.com/watcherhq/watcher/internal/models"
)

var (
	// ErrScrapeTimeout indicates the page never finished loading within any
	// stage of the progressive timeout schedule.
	ErrScrapeTimeout = errors.New("page load timed out")

	// ErrScrapeFailed indicates navigation failed (DNS, TLS, HTTP error on
	// the main document) after exhausting retries.
	ErrScrapeFailed = errors.New("scrape failed")
)

// DefaultTimeoutSchedule is the progressive page-load schedule: a short
// attempt first, escalating only when the previous stage timed out.
var DefaultTimeoutSchedule = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

// Extractor turns a rendered page into a snapshot according to an extraction
// config. Missing fields are recorded as absent, never as failures: partial
// extraction is success as long as the page loaded.
type Extractor struct {
	schedule []time.Duration
	retry    RetryPolicy
	logger   *slog.Logger
}

// Result is a successful extraction: the snapshot plus any non-fatal
// diagnostics (script exceptions, per-field selector errors).
type Result struct {
	Snapshot    *models.Snapshot
	Diagnostics []string
}

// New creates an extractor with the default timeout schedule and retry policy.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{
		schedule: DefaultTimeoutSchedule,
		retry:    DefaultRetryPolicy(),
		logger:   logger,
	}
}

// NewWithSchedule creates an extractor with explicit timeout and retry
// bounds, used by tests and by callers that need tighter budgets.
func NewWithSchedule(schedule []time.Duration, retry RetryPolicy, logger *slog.Logger) *Extractor {
	return &Extractor{schedule: schedule, retry: retry, logger: logger}
}

// MaxBudget returns the sum of all timeout stages, the worst-case time spent
// waiting on page loads for one extraction.
func (e *Extractor) MaxBudget() time.Duration {
	var total time.Duration
	for _, d := range e.schedule {
		total += d
	}
	return total
}

// Extract renders the page on the given renderer and evaluates every field
// rule against the result.
func (e *Extractor) Extract(ctx context.Context, renderer browser.Renderer, url string, cfg models.ExtractionConfig) (*Result, error) {
	rendered, err := e.render(ctx, renderer, url)
	if err != nil {
		return nil, err
	}

	snapshot := models.NewSnapshot(time.Now().UTC())
	diagnostics := append([]string(nil), rendered.Diagnostics...)

	cssDoc, cssErr := goquery.NewDocumentFromReader(strings.NewReader(rendered.HTML))
	xpathDoc, xpathErr := htmlquery.Parse(strings.NewReader(rendered.HTML))

	for _, rule := range cfg.Fields {
		var raw string
		var found bool

		switch rule.Kind {
		case models.SelectorCSS:
			if cssErr != nil {
				diagnostics = append(diagnostics, fmt.Sprintf("field %s: parse document: %v", rule.Name, cssErr))
				continue
			}
			sel := cssDoc.Find(rule.Selector)
			if sel.Length() > 0 {
				raw, found = sel.First().Text(), true
			}

		case models.SelectorXPath:
			if xpathErr != nil {
				diagnostics = append(diagnostics, fmt.Sprintf("field %s: parse document: %v", rule.Name, xpathErr))
				continue
			}
			node, err := htmlquery.Query(xpathDoc, rule.Selector)
			if err != nil {
				diagnostics = append(diagnostics, fmt.Sprintf("field %s: xpath: %v", rule.Name, err))
				continue
			}
			if node != nil {
				raw, found = htmlquery.InnerText(node), true
			}
		}

		if !found {
			e.logger.Debug("selector matched nothing", "url", url, "field", rule.Name)
			continue
		}

		snapshot.Set(rule, Normalize(rule.Normalize, raw))
	}

	e.logger.Info("extraction complete",
		"url", url,
		"fields_configured", len(cfg.Fields),
		"fields_captured", snapshot.Len(),
		"diagnostics", len(diagnostics),
	)

	return &Result{Snapshot: snapshot, Diagnostics: diagnostics}, nil
}

// render walks the progressive timeout schedule. Only a timeout escalates to
// the next stage; transient navigation errors are retried with backoff at
// the current stage.
func (e *Extractor) render(ctx context.Context, renderer browser.Renderer, url string) (*browser.RenderResult, error) {
	var lastErr error

	for i, stage := range e.schedule {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("extraction cancelled: %w", ctx.Err())
		}

		var result *browser.RenderResult
		err := Retry(ctx, e.retry, func() error {
			r, err := renderer.Render(ctx, url, stage)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return err // escalate the schedule, do not retry
				}
				return NewRetryableError(err)
			}
			result = r
			return nil
		})

		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("extraction cancelled: %w", ctx.Err())
		}

		if errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn("page load timed out, escalating",
				"url", url,
				"stage", i+1,
				"timeout", stage,
			)
			lastErr = err
			continue
		}

		return nil, fmt.Errorf("%w: %v", ErrScrapeFailed, err)
	}

	return nil, fmt.Errorf("%w: exhausted %d timeout stages: %v", ErrScrapeTimeout, len(e.schedule), lastErr)
}
