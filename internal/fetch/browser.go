package fetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/jonathan/specsheet/internal/logging"
)

// DefaultBrowserTimeout bounds a single browser render.
const DefaultBrowserTimeout = 45 * time.Second

// Renderer returns the HTML of a page after scripts ran.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Browser renders pages in headless Chrome. Requires Chrome/Chromium on the host.
type Browser struct {
	Timeout time.Duration
	// WaitFor is the selector awaited before the DOM is captured.
	WaitFor string
	// Settle is an extra pause for late scripts.
	Settle time.Duration
}

// NewBrowser returns a Browser with default timings.
func NewBrowser(timeout time.Duration) *Browser {
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}
	return &Browser{Timeout: timeout, WaitFor: "body", Settle: 2 * time.Second}
}

// Render navigates to url and returns the rendered outer HTML.
func (b *Browser) Render(ctx context.Context, url string) (string, error) {
	logger := logging.FromContext(ctx)
	logger.Debug().Str("url", url).Msg("starting headless browser")

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(b.WaitFor),
		chromedp.Sleep(b.Settle),
		// Cookie walls hide the spec tables on some sites; a missing button is fine.
		chromedp.ActionFunc(func(ctx context.Context) error {
			clickCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_ = chromedp.Click(`button[id*="accept"], button[class*="accept"], button[class*="consent"]`, chromedp.NodeVisible).Do(clickCtx)
			return nil
		}),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}

	logger.Debug().Str("url", url).Int("bytes", len(html)).Msg("rendered page")
	return html, nil
}

// RenderingFetcher fetches through a Renderer instead of plain HTTP.
type RenderingFetcher struct {
	Renderer Renderer
}

// Fetch renders url and wraps the HTML as a Result.
func (f *RenderingFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if f.Renderer == nil {
		return nil, &Error{URL: url, Message: "no renderer configured"}
	}
	html, err := f.Renderer.Render(ctx, url)
	if err != nil {
		return nil, err
	}
	if html == "" {
		return nil, &Error{URL: url, Message: "browser returned an empty document"}
	}
	return &Result{URL: url, HTML: html, StatusCode: 200, Rendered: true}, nil
}
