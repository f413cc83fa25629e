package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Origin returns scheme://host[:port]/ of base.
func Origin(base *url.URL) *url.URL {
	if base == nil {
		return nil
	}
	return &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
}

// Resolve turns ref into an absolute URL using the origin of base.
// References that cannot be parsed are returned unchanged.
func Resolve(base *url.URL, ref string) string {
	origin := Origin(base)
	if origin == nil {
		return ref
	}
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return origin.ResolveReference(parsed).String()
}

// ResolveString is Resolve for a raw base URL. The base must be absolute.
func ResolveString(rawBase, ref string) (string, error) {
	base, err := url.Parse(rawBase)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return "", errors.New("base url must be absolute")
	}
	return Resolve(base, ref), nil
}

// ResolveURL resolves ref and parses the result. ok is false when the
// reference is not usable as a fetchable http(s) URL.
func ResolveURL(base *url.URL, ref string) (*url.URL, bool) {
	resolved, err := url.Parse(Resolve(base, ref))
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(resolved.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false
	}
	if resolved.Hostname() == "" {
		return nil, false
	}
	return resolved, true
}

// IsLocal reports whether target lives on the same host as base.
// Only an exact hostname match counts; ports and schemes are ignored.
func IsLocal(base, target *url.URL) bool {
	if base == nil || target == nil {
		return false
	}
	host := target.Hostname()
	return host != "" && strings.EqualFold(base.Hostname(), host)
}
