package types

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// PageTarget identifies the page to mirror and where to put it.
type PageTarget struct {
	BaseURL   *url.URL
	OutputDir string
}

// NewPageTarget validates the raw page URL and resolves the output directory to an absolute path.
func NewPageTarget(rawURL, outputDir string) (PageTarget, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return PageTarget{}, &ValidationError{Field: "url", Message: "page url is required"}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return PageTarget{}, &ValidationError{Field: "url", Message: fmt.Sprintf("invalid page url %q: %v", rawURL, err)}
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return PageTarget{}, &ValidationError{Field: "url", Message: fmt.Sprintf("page url %q must use http or https", rawURL)}
	}
	if parsed.Hostname() == "" {
		return PageTarget{}, &ValidationError{Field: "url", Message: fmt.Sprintf("page url %q has no host", rawURL)}
	}

	if strings.TrimSpace(outputDir) == "" {
		outputDir = "."
	}
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return PageTarget{}, &ValidationError{Field: "output", Message: fmt.Sprintf("resolve output directory %q: %v", outputDir, err)}
	}

	return PageTarget{BaseURL: parsed, OutputDir: abs}, nil
}

// Reference is a single resource attribute value found in the document.
type Reference struct {
	Value    string
	Category Category
	Tag      string
	Attr     string
}

// ResolvedResource is a reference paired with its absolute URL and local file name.
type ResolvedResource struct {
	Reference Reference
	URL       *url.URL
	Local     bool
	FileName  string
}
