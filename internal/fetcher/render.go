package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer executes a page's scripts and returns the resulting DOM.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// RenderOptions configures headless rendering.
type RenderOptions struct {
	Timeout         time.Duration
	WaitForSelector string
	UserAgent       string
	MaxBodyBytes    int64
	DisableHeadless bool
	Logger          *slog.Logger
}

// ChromedpRenderer renders pages in headless Chrome.
type ChromedpRenderer struct {
	opts   RenderOptions
	logger *slog.Logger
}

// NewChromedpRenderer applies defaults to opts.
func NewChromedpRenderer(opts RenderOptions) *ChromedpRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 50 * 1024 * 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpRenderer{opts: opts, logger: logger}
}

// Render navigates to rawURL and returns the outer HTML of the document.
func (r *ChromedpRenderer) Render(parentCtx context.Context, rawURL string) (string, error) {
	waitSelector := strings.TrimSpace(r.opts.WaitForSelector)
	logger := r.logger.With("url", rawURL, "timeout", r.opts.Timeout.String(), "wait_for_selector", waitSelector)

	ctx, cancel := context.WithTimeout(parentCtx, r.opts.Timeout)
	defer cancel()

	execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	execOpts = append(execOpts,
		chromedp.Flag("headless", !r.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	)
	if ua := strings.TrimSpace(r.opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()
	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	actions := []chromedp.Action{chromedp.Navigate(rawURL)}
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitReady(waitSelector, chromedp.ByQuery))
	} else {
		actions = append(actions, waitForDocumentReady())
	}
	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	start := time.Now()
	logger.Debug("chromedp starting render")
	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	if int64(len(html)) > r.opts.MaxBodyBytes {
		return "", fmt.Errorf("rendered document exceeds limit of %d bytes", r.opts.MaxBodyBytes)
	}

	logger.Debug("chromedp render complete", "latency_ms", time.Since(start).Milliseconds(), "html_bytes", len(html))
	return "<!DOCTYPE html>\n" + html, nil
}

func waitForDocumentReady() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				return err
			}
			if readyState == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// Composite renders the page text through a Renderer when one is set and
// uses plain HTTP for everything else.
type Composite struct {
	http     Fetcher
	renderer Renderer
	logger   *slog.Logger
}

var _ Fetcher = (*Composite)(nil)

// NewComposite builds a composite fetcher. renderer may be nil.
func NewComposite(httpFetcher Fetcher, renderer Renderer, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{http: httpFetcher, renderer: renderer, logger: logger}
}

// FetchText renders rawURL, falling back to HTTP when the renderer fails.
func (c *Composite) FetchText(ctx context.Context, rawURL string) (string, error) {
	if c.renderer != nil {
		html, err := c.renderer.Render(ctx, rawURL)
		if err == nil {
			return html, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Warn("renderer failed, falling back to HTTP fetch", "url", rawURL, "error", err)
	}
	return c.http.FetchText(ctx, rawURL)
}

func (c *Composite) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return c.http.FetchBytes(ctx, rawURL)
}

func (c *Composite) FetchMany(ctx context.Context, urls []string) ([][]byte, error) {
	return c.http.FetchMany(ctx, urls)
}
