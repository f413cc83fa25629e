package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"page-loader/internal/config"
	"page-loader/internal/document"
	"page-loader/internal/fetcher"
	"page-loader/internal/naming"
	"page-loader/internal/resources"
	robotsclient "page-loader/internal/robots"
	"page-loader/internal/storage"
	"page-loader/pkg/types"
)

// Store is the persistence the loader needs for pages and resources.
type Store interface {
	resources.Store
	CheckDir(dir string) error
}

// Loader mirrors one page and its same-host resources to disk.
type Loader struct {
	fetcher  fetcher.Fetcher
	store    Store
	robots   *robotsclient.Agent
	naming   naming.Formatter
	observer resources.Observer
	logger   *slog.Logger
}

// Option customises a Loader built by New.
type Option func(*Loader)

// WithObserver reports resource progress to o.
func WithObserver(o resources.Observer) Option {
	return func(l *Loader) { l.observer = o }
}

// WithFetcher replaces the configured fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(l *Loader) { l.fetcher = f }
}

// New assembles a Loader from configuration. When logger is nil one is
// built from cfg.Logging and writes to stderr.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Loader, error) {
	if logger == nil {
		built, err := config.BuildLogger(cfg.Logging, os.Stderr)
		if err != nil {
			return nil, err
		}
		logger = built
	}

	var rateLimit fetcher.RateLimit
	if rl := cfg.Fetch.RateLimitPerHost; rl.Enabled() {
		rateLimit = fetcher.RateLimit{Requests: rl.Requests, Window: rl.Window.Duration}
	}
	limiter := fetcher.NewHostLimiter(cfg.Fetch.PerHostDelay.Duration, rateLimit)

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		Headers:      cfg.Fetch.Headers,
		Timeout:      cfg.Fetch.Timeout.Duration,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		ProxyURL:     cfg.Fetch.ProxyURL,
		Concurrency:  cfg.Fetch.Concurrency,
		Limiter:      limiter,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}

	var renderer fetcher.Renderer
	if cfg.Rendering.Enabled {
		renderer = fetcher.NewChromedpRenderer(fetcher.RenderOptions{
			Timeout:         cfg.Rendering.Timeout.Duration,
			WaitForSelector: cfg.Rendering.WaitForSelector,
			UserAgent:       cfg.Fetch.UserAgent,
			MaxBodyBytes:    cfg.Fetch.MaxBodyBytes,
			DisableHeadless: cfg.Rendering.DisableHeadless,
			Logger:          logger,
		})
	}

	var robots *robotsclient.Agent
	if cfg.Robots.Respect {
		robots = robotsclient.NewAgent(cfg.Robots, httpFetcher.Client(), logger)
	}

	l := &Loader{
		fetcher: fetcher.NewComposite(httpFetcher, renderer, logger),
		store:   storage.NewFileStore(),
		robots:  robots,
		naming: naming.Formatter{
			Separator:        cfg.Naming.Separator,
			DefaultExtension: cfg.Naming.DefaultExtension,
		},
		observer: resources.NopObserver{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load downloads target and its local resources and returns the absolute
// path of the saved page. The first failure aborts the run; files written
// before it are kept.
func (l *Loader) Load(ctx context.Context, target types.PageTarget) (string, error) {
	if target.BaseURL == nil {
		return "", &types.ValidationError{Field: "url", Message: "page url is required"}
	}
	pageURL := target.BaseURL.String()
	logger := l.logger.With("url", pageURL)

	if err := l.store.CheckDir(target.OutputDir); err != nil {
		return "", err
	}
	if err := l.robots.Check(ctx, target.BaseURL); err != nil {
		return "", err
	}

	logger.Info("fetching page")
	html, err := l.fetcher.FetchText(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}

	doc, err := document.ParseString(html)
	if err != nil {
		return "", err
	}

	pipeline := &resources.Pipeline{
		Target:   target,
		Document: doc,
		Fetcher:  l.fetcher,
		Store:    l.store,
		Naming:   l.naming,
		Logger:   logger,
		Observer: l.observer,
	}
	if err := pipeline.ProcessAll(ctx); err != nil {
		return "", err
	}

	out, err := doc.Serialize()
	if err != nil {
		return "", err
	}
	path, err := l.store.Write(ctx, target.OutputDir, l.naming.FileName(target.BaseURL), []byte(out))
	if err != nil {
		return "", err
	}
	logger.Info("page saved", "file", path)
	return path, nil
}
