package browser

import (
	"context"
	"time"
)

// RenderResult is a fully rendered page plus non-fatal diagnostics collected
// while rendering (script exceptions on the page do not fail the render).
type RenderResult struct {
	HTML        string
	Diagnostics []string
}

// Renderer renders a page with a real browser engine. Implementations must
// tear down the browser session on every exit path, including timeouts and
// context cancellation.
type Renderer interface {
	Render(ctx context.Context, url string, timeout time.Duration) (*RenderResult, error)
	Close() error
}
