package document

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"page-loader/pkg/types"
)

// Document wraps a parsed HTML page shared by all resource pipelines.
type Document struct {
	mu  sync.Mutex
	doc *goquery.Document
}

// Parse reads and parses HTML from r.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString parses an HTML string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// References returns the resource references of category c in document order.
// Empty values and data URIs are skipped.
func (d *Document) References(c types.Category) ([]types.Reference, error) {
	if !c.Valid() {
		return nil, types.UnsupportedCategoryError(c.String())
	}
	tag, attr := c.Tag(), c.Attr()

	d.mu.Lock()
	defer d.mu.Unlock()

	var refs []types.Reference
	d.doc.Find(selector(c)).Each(func(_ int, s *goquery.Selection) {
		value, ok := s.Attr(attr)
		if !ok || !isFetchable(value) {
			return
		}
		refs = append(refs, types.Reference{
			Value:    value,
			Category: c,
			Tag:      tag,
			Attr:     attr,
		})
	})
	return refs, nil
}

// Values returns only the attribute values of References.
func (d *Document) Values(c types.Category) ([]string, error) {
	refs, err := d.References(c)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(refs))
	for _, ref := range refs {
		values = append(values, ref.Value)
	}
	return values, nil
}

// Replace sets the reference attribute to newValue on every element of
// category c whose current value equals oldValue. It returns the number of
// elements changed.
func (d *Document) Replace(c types.Category, oldValue, newValue string) (int, error) {
	return d.ReplaceAll(c, map[string]string{oldValue: newValue})
}

// ReplaceAll rewrites every element of category c whose current value is a
// key of replacements, in a single pass. Each element is matched against its
// value before the pass, so a new value is never rewritten again.
func (d *Document) ReplaceAll(c types.Category, replacements map[string]string) (int, error) {
	if !c.Valid() {
		return 0, types.UnsupportedCategoryError(c.String())
	}
	attr := c.Attr()

	d.mu.Lock()
	defer d.mu.Unlock()

	replaced := 0
	d.doc.Find(selector(c)).Each(func(_ int, s *goquery.Selection) {
		value, ok := s.Attr(attr)
		if !ok {
			return
		}
		if newValue, ok := replacements[value]; ok {
			s.SetAttr(attr, newValue)
			replaced++
		}
	})
	return replaced, nil
}

// Serialize renders the whole document back to HTML.
func (d *Document) Serialize() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	for _, node := range d.doc.Nodes {
		if err := html.Render(&buf, node); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

func selector(c types.Category) string {
	return fmt.Sprintf("%s[%s]", c.Tag(), c.Attr())
}

func isFetchable(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	return !strings.HasPrefix(strings.ToLower(trimmed), "data:")
}
