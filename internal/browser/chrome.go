package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/watcherhq/watcher/internal/config"
)

// ChromeRenderer drives a headless Chrome instance over the DevTools
// protocol. One ChromeRenderer owns one browser process; each Render call
// runs in a fresh tab that is always closed before returning.
type ChromeRenderer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromeRenderer launches a browser allocator with the given settings.
func NewChromeRenderer(cfg config.BrowserConfig) (*ChromeRenderer, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromeRenderer{
		allocCtx:    allocCtx,
		allocCancel: cancel,
	}, nil
}

// Render navigates to url and returns the rendered document. Page script
// exceptions are collected as diagnostics, not errors. The tab is torn down
// on every exit path.
func (r *ChromeRenderer) Render(ctx context.Context, url string, timeout time.Duration) (*RenderResult, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.allocCtx)
	defer cancelTab()

	runCtx, cancelRun := context.WithTimeout(tabCtx, timeout)
	defer cancelRun()

	var mu sync.Mutex
	var diagnostics []string

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if ex, ok := ev.(*runtime.EventExceptionThrown); ok {
			mu.Lock()
			diagnostics = append(diagnostics, ex.ExceptionDetails.Error())
			mu.Unlock()
		}
	})

	// Honor caller cancellation independently of the page-load timeout.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancelRun()
		case <-done:
		}
	}()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)

	mu.Lock()
	result := &RenderResult{HTML: html, Diagnostics: diagnostics}
	mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("render cancelled: %w", ctx.Err())
		}
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("page load timed out after %v: %w", timeout, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("render %s: %w", url, err)
	}

	return result, nil
}

// Close shuts down the browser process.
func (r *ChromeRenderer) Close() error {
	r.allocCancel()
	return nil
}
