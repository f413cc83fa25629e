package resources

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"page-loader/internal/document"
	"page-loader/internal/fetcher"
	"page-loader/internal/naming"
	"page-loader/internal/resolver"
	"page-loader/pkg/types"
)

// Store persists downloaded resources.
type Store interface {
	Write(ctx context.Context, dir, name string, data []byte) (string, error)
}

// Observer receives progress callbacks from a Pipeline. Calls for
// different categories may arrive concurrently.
type Observer interface {
	BatchStarted(c types.Category, total int)
	ResourceSaved(c types.Category, path string)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) BatchStarted(types.Category, int)     {}
func (NopObserver) ResourceSaved(types.Category, string) {}

// Pipeline downloads the same-host resources of one page and rewrites the
// page to reference the local copies.
type Pipeline struct {
	Target   types.PageTarget
	Document *document.Document
	Fetcher  fetcher.Fetcher
	Store    Store
	Naming   naming.Formatter
	Logger   *slog.Logger
	Observer Observer
}

// Process handles a single category: extract, resolve, keep same-host
// references, fetch them as one batch, save each in document order, then
// rewrite the category in one pass. A failed fetch or write leaves the
// document untouched.
func (p *Pipeline) Process(ctx context.Context, c types.Category) error {
	if !c.Valid() {
		return types.UnsupportedCategoryError(c.String())
	}
	logger := p.logger().With("category", c.String())

	refs, err := p.Document.References(c)
	if err != nil {
		return err
	}
	local := p.resolve(refs, logger)
	if len(local) == 0 {
		logger.Debug("no local resources")
		return nil
	}

	urls := make([]string, len(local))
	for i, r := range local {
		urls[i] = r.URL.String()
	}
	p.observer().BatchStarted(c, len(local))
	logger.Info("downloading resources", "count", len(local))

	bodies, err := p.Fetcher.FetchMany(ctx, urls)
	if err != nil {
		return fmt.Errorf("download %s resources: %w", c, err)
	}

	dirName := p.Naming.DirName(p.Target.BaseURL)
	resourceDir := filepath.Join(p.Target.OutputDir, dirName)
	replacements := make(map[string]string, len(local))
	for i, r := range local {
		path, err := p.Store.Write(ctx, resourceDir, r.FileName, bodies[i])
		if err != nil {
			return err
		}
		// Rewritten references are relative to the saved page, so they always use "/".
		replacements[r.Reference.Value] = dirName + "/" + r.FileName
		logger.Debug("saved resource", "url", urls[i], "file", path)
		p.observer().ResourceSaved(c, path)
	}

	n, err := p.Document.ReplaceAll(c, replacements)
	if err != nil {
		return err
	}
	logger.Debug("rewrote references", "count", n)
	return nil
}

// ProcessName parses name as a category before processing it.
func (p *Pipeline) ProcessName(ctx context.Context, name string) error {
	c, err := types.ParseCategory(name)
	if err != nil {
		return err
	}
	return p.Process(ctx, c)
}

// ProcessAll runs the given categories, or all of them when none are
// given, concurrently. The first failure cancels the others.
func (p *Pipeline) ProcessAll(ctx context.Context, categories ...types.Category) error {
	if len(categories) == 0 {
		categories = types.AllCategories()
	}
	for _, c := range categories {
		if !c.Valid() {
			return types.UnsupportedCategoryError(c.String())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range categories {
		g.Go(func() error {
			return p.Process(gctx, c)
		})
	}
	return g.Wait()
}

// resolve keeps same-host references that resolve to http(s) URLs, one
// entry per distinct attribute value.
func (p *Pipeline) resolve(refs []types.Reference, logger *slog.Logger) []types.ResolvedResource {
	base := p.Target.BaseURL
	seen := make(map[string]struct{}, len(refs))
	var out []types.ResolvedResource
	for _, ref := range refs {
		if _, dup := seen[ref.Value]; dup {
			continue
		}
		seen[ref.Value] = struct{}{}

		u, ok := resolver.ResolveURL(base, ref.Value)
		if !ok {
			logger.Debug("skipping unresolvable reference", "value", ref.Value)
			continue
		}
		if !resolver.IsLocal(base, u) {
			continue
		}
		out = append(out, types.ResolvedResource{
			Reference: ref,
			URL:       u,
			Local:     true,
			FileName:  p.Naming.FileName(u),
		})
	}
	return out
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) observer() Observer {
	if p.Observer == nil {
		return NopObserver{}
	}
	return p.Observer
}
