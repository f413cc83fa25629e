package naming

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DirSuffix is appended to the resource directory of every page.
const DirSuffix = "_files"

var (
	nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)
	extensionRe     = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)
)

// Formatter derives filesystem-safe names from URLs.
type Formatter struct {
	Separator        string
	DefaultExtension string
}

// Default uses "-" between words and ".html" for extension-less paths.
var Default = Formatter{Separator: "-", DefaultExtension: "html"}

func (f Formatter) normalised() Formatter {
	if f.Separator == "" {
		f.Separator = Default.Separator
	}
	f.DefaultExtension = strings.TrimPrefix(f.DefaultExtension, ".")
	if f.DefaultExtension == "" {
		f.DefaultExtension = Default.DefaultExtension
	}
	return f
}

// FileName builds a file name from the hostname and path of u. A trailing
// slash is ignored and an existing alphanumeric extension is preserved.
func (f Formatter) FileName(u *url.URL) string {
	f = f.normalised()
	p := strings.TrimSuffix(u.Path, "/")

	ext := path.Ext(p)
	if ext != "" && extensionRe.MatchString(ext) {
		p = strings.TrimSuffix(p, ext)
	} else {
		ext = "." + f.DefaultExtension
	}
	return f.slug(u.Hostname()+p) + ext
}

// DirName builds the resource directory name for u. The root path
// collapses to the hostname alone.
func (f Formatter) DirName(u *url.URL) string {
	f = f.normalised()
	p := u.Path
	if p == "/" {
		p = ""
	}
	return f.slug(u.Hostname()+p) + DirSuffix
}

// FileNameString parses raw and returns its file name.
func (f Formatter) FileNameString(raw string) (string, error) {
	u, err := parseAbsolute(raw)
	if err != nil {
		return "", err
	}
	return f.FileName(u), nil
}

// DirNameString parses raw and returns its resource directory name.
func (f Formatter) DirNameString(raw string) (string, error) {
	u, err := parseAbsolute(raw)
	if err != nil {
		return "", err
	}
	return f.DirName(u), nil
}

// FileName formats u with the default formatter.
func FileName(u *url.URL) string {
	return Default.FileName(u)
}

// DirName formats u with the default formatter.
func DirName(u *url.URL) string {
	return Default.DirName(u)
}

func (f Formatter) slug(s string) string {
	return nonAlphanumeric.ReplaceAllString(s, f.Separator)
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}
