package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"page-loader/internal/config"
	"page-loader/pkg/types"
)

const page = `<!DOCTYPE html>
<html>
  <head>
    <link rel="stylesheet" href="/assets/app.css">
    <link rel="stylesheet" href="https://cdn.example.com/remote.css">
  </head>
  <body>
    <img src="/assets/logo.png">
    <script src="/assets/app.js"></script>
  </body>
</html>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func siteServer(t *testing.T, pageStatus int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/courses":
			if pageStatus != http.StatusOK {
				http.Error(w, "unavailable", pageStatus)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, page)
		case "/assets/app.css":
			fmt.Fprint(w, "body{}")
		case "/assets/logo.png":
			fmt.Fprint(w, "PNG")
		case "/assets/app.js":
			fmt.Fprint(w, "alert(1)")
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /courses\n")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newLoader(t *testing.T, cfg config.Config) *Loader {
	t.Helper()
	l, err := New(cfg, quietLogger())
	require.NoError(t, err)
	return l
}

func TestLoadMirrorsPage(t *testing.T) {
	srv, _ := siteServer(t, http.StatusOK)
	out := t.TempDir()
	target, err := types.NewPageTarget(srv.URL+"/courses", out)
	require.NoError(t, err)

	path, err := newLoader(t, config.Default()).Load(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "127-0-0-1-courses.html"), path)

	dir := filepath.Join(out, "127-0-0-1-courses_files")
	for name, body := range map[string]string{
		"127-0-0-1-assets-app.css":  "body{}",
		"127-0-0-1-assets-logo.png": "PNG",
		"127-0-0-1-assets-app.js":   "alert(1)",
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, body, string(data))
	}

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(saved)
	assert.Contains(t, html, `href="127-0-0-1-courses_files/127-0-0-1-assets-app.css"`)
	assert.Contains(t, html, `src="127-0-0-1-courses_files/127-0-0-1-assets-logo.png"`)
	assert.Contains(t, html, `src="127-0-0-1-courses_files/127-0-0-1-assets-app.js"`)
	assert.Contains(t, html, `href="https://cdn.example.com/remote.css"`)
}

func TestLoadMissingOutputDir(t *testing.T) {
	srv, hits := siteServer(t, http.StatusOK)
	target, err := types.NewPageTarget(srv.URL+"/courses", filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)

	_, err = newLoader(t, config.Default()).Load(context.Background(), target)
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestLoadPageServerError(t *testing.T) {
	srv, _ := siteServer(t, http.StatusInternalServerError)
	out := t.TempDir()
	target, err := types.NewPageTarget(srv.URL+"/courses", out)
	require.NoError(t, err)

	_, err = newLoader(t, config.Default()).Load(context.Background(), target)
	var httpErr *types.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Contains(t, types.UserMessage(err), "server error")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadRespectsRobots(t *testing.T) {
	srv, _ := siteServer(t, http.StatusOK)
	target, err := types.NewPageTarget(srv.URL+"/courses", t.TempDir())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Robots.Respect = true

	_, err = newLoader(t, cfg).Load(context.Background(), target)
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Error(), "robots.txt")
}

func TestLoadUsesNamingConfig(t *testing.T) {
	srv, _ := siteServer(t, http.StatusOK)
	out := t.TempDir()
	target, err := types.NewPageTarget(srv.URL+"/courses", out)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Naming.Separator = "_"

	path, err := newLoader(t, cfg).Load(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "127_0_0_1_courses.html"), path)
	assert.FileExists(t, filepath.Join(out, "127_0_0_1_courses_files", "127_0_0_1_assets_logo.png"))
}

type countingObserver struct {
	batches int32
	saved   int32
}

func (c *countingObserver) BatchStarted(types.Category, int) { atomic.AddInt32(&c.batches, 1) }
func (c *countingObserver) ResourceSaved(types.Category, string) {
	atomic.AddInt32(&c.saved, 1)
}

func TestLoadReportsProgress(t *testing.T) {
	srv, _ := siteServer(t, http.StatusOK)
	target, err := types.NewPageTarget(srv.URL+"/courses", t.TempDir())
	require.NoError(t, err)

	obs := &countingObserver{}
	l, err := New(config.Default(), quietLogger(), WithObserver(obs))
	require.NoError(t, err)

	_, err = l.Load(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&obs.batches))
	assert.Equal(t, int32(3), atomic.LoadInt32(&obs.saved))
}

func TestNewRejectsBadLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "chatty"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestLoadFailsOnBrokenResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/courses":
			fmt.Fprint(w, page)
		case "/assets/app.css":
			fmt.Fprint(w, "body{}")
		case "/assets/app.js":
			fmt.Fprint(w, "alert(1)")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	out := t.TempDir()
	target, err := types.NewPageTarget(srv.URL+"/courses", out)
	require.NoError(t, err)

	_, err = newLoader(t, config.Default()).Load(context.Background(), target)
	var httpErr *types.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, srv.URL+"/assets/logo.png", httpErr.URL)
	assert.NoFileExists(t, filepath.Join(out, "127-0-0-1-courses.html"))
}

// stubFetcher serves the page from memory. Batches containing failURL fail
// at once; every other batch waits for cancellation when block is set.
type stubFetcher struct {
	page      string
	failURL   string
	block     bool
	cancelled atomic.Int32
}

func (s *stubFetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	return s.page, nil
}

func (s *stubFetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return []byte(rawURL), nil
}

func (s *stubFetcher) FetchMany(ctx context.Context, urls []string) ([][]byte, error) {
	for _, u := range urls {
		if strings.HasSuffix(u, s.failURL) {
			return nil, &types.HTTPError{URL: u, StatusCode: http.StatusNotFound}
		}
	}
	if s.block {
		select {
		case <-ctx.Done():
			s.cancelled.Add(1)
			return nil, &types.NetworkError{URL: urls[0], Cause: ctx.Err()}
		case <-time.After(5 * time.Second):
			return nil, fmt.Errorf("not cancelled")
		}
	}
	out := make([][]byte, len(urls))
	for i, u := range urls {
		out[i] = []byte(u)
	}
	return out, nil
}

func TestLoadWithInjectedFetcher(t *testing.T) {
	out := t.TempDir()
	target, err := types.NewPageTarget("https://example.com/courses", out)
	require.NoError(t, err)

	l, err := New(config.Default(), quietLogger(), WithFetcher(&stubFetcher{page: page}))
	require.NoError(t, err)

	path, err := l.Load(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "example-com-courses.html"), path)

	data, err := os.ReadFile(filepath.Join(out, "example-com-courses_files", "example-com-assets-logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/assets/logo.png", string(data))
}

func TestLoadCancelsOtherCategoriesOnFailure(t *testing.T) {
	out := t.TempDir()
	target, err := types.NewPageTarget("https://example.com/courses", out)
	require.NoError(t, err)

	stub := &stubFetcher{page: page, failURL: "/assets/app.js", block: true}
	l, err := New(config.Default(), quietLogger(), WithFetcher(stub))
	require.NoError(t, err)

	_, err = l.Load(context.Background(), target)
	var httpErr *types.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "https://example.com/assets/app.js", httpErr.URL)

	assert.Equal(t, int32(2), stub.cancelled.Load(), "image and stylesheet batches should be cancelled")
	assert.NoFileExists(t, filepath.Join(out, "example-com-courses.html"))
	assert.NoDirExists(t, filepath.Join(out, "example-com-courses_files"))
}

func TestNewAppliesRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Fetch.RateLimitPerHost = config.RateLimitConfig{Requests: 1, Window: config.DurationFrom(60 * time.Millisecond)}
	srv, _ := siteServer(t, http.StatusOK)
	target, err := types.NewPageTarget(srv.URL+"/courses", t.TempDir())
	require.NoError(t, err)

	start := time.Now()
	_, err = newLoader(t, cfg).Load(context.Background(), target)
	require.NoError(t, err)
	// Page plus three resources on one host: at least three waits.
	assert.GreaterOrEqual(t, time.Since(start), 170*time.Millisecond)
}
