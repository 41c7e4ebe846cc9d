package mirror

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/PentesterFlow/spa-crawler/internal/scope"
)

const (
	// MaxQueryLen bounds raw queries mapped under assets_q.
	MaxQueryLen = 8000

	maxComponentLen = 255
	fallbackExt     = ".bin"

	PagesDir       = "pages"
	AssetsDir      = "assets"
	AssetsQueryDir = "assets_q"
	IndexFile      = "index.html"
)

// Resolver maps URLs to deterministic paths under the output directory.
type Resolver struct {
	outDir      string
	origin      string
	apiPrefixes []string
}

// NewResolver creates a resolver rooted at outDir for base's origin.
func NewResolver(outDir string, base *url.URL, apiPrefixes []string) *Resolver {
	return &Resolver{
		outDir:      outDir,
		origin:      scope.Origin(base),
		apiPrefixes: apiPrefixes,
	}
}

// PagePath returns pages/index.html for the root and pages/<path>/index.html
// otherwise. A trailing slash does not change the result. Paths with unsafe
// segments resolve to false.
func (r *Resolver) PagePath(u *url.URL) (string, bool) {
	segs, ok := pathSegments(u)
	if !ok {
		return "", false
	}

	parts := make([]string, 0, len(segs)+3)
	parts = append(parts, r.outDir, PagesDir)
	parts = append(parts, segs...)
	parts = append(parts, IndexFile)
	return filepath.Join(parts...), true
}

// AssetDestination resolves where a same-origin response is stored.
// Responses without a query go to assets/<path>, gaining an extension from
// contentType (or .bin) if the path has none. Responses with a query go to
// assets_q/<path>/<raw query> verbatim. Cross-origin, API and unmappable
// URLs resolve to false.
func (r *Resolver) AssetDestination(u *url.URL, contentType string) (string, bool) {
	if scope.Origin(u) != r.origin {
		return "", false
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if scope.LooksLikeAPIPath(p, r.apiPrefixes) {
		return "", false
	}

	segs, ok := pathSegments(u)
	if !ok {
		return "", false
	}

	if raw := RawQuery(u); raw != "" {
		component, ok := QueryComponent(raw)
		if !ok {
			return "", false
		}
		parts := make([]string, 0, len(segs)+3)
		parts = append(parts, r.outDir, AssetsQueryDir)
		parts = append(parts, segs...)
		parts = append(parts, component)
		return filepath.Join(parts...), true
	}

	if len(segs) == 0 || strings.HasSuffix(p, "/") {
		return "", false
	}

	parts := make([]string, 0, len(segs)+2)
	parts = append(parts, r.outDir, AssetsDir)
	parts = append(parts, segs...)
	dest := filepath.Join(parts...)

	if scope.FileSuffix(segs[len(segs)-1]) == "" {
		ext := scope.ExtensionForContentType(contentType)
		if ext == "" {
			ext = fallbackExt
		}
		dest += ext
	}
	return dest, true
}

// RawQuery returns the query exactly as it appeared in the request URL.
func RawQuery(u *url.URL) string {
	return u.RawQuery
}

// QueryComponent encodes a raw query as a single path component. The
// encoding is the identity, so the component is the query byte-for-byte.
func QueryComponent(raw string) (string, bool) {
	if len(raw) > MaxQueryLen {
		return "", false
	}
	if !safeComponent(raw) {
		return "", false
	}
	return raw, true
}

// RequestKey identifies a request within a page session: the URL without
// its fragment.
func RequestKey(u *url.URL) string {
	k := *u
	k.Fragment = ""
	k.RawFragment = ""
	return k.String()
}

// pathSegments splits the escaped path into decoded segments. A trailing
// slash is ignored; empty interior segments and unsafe segments fail.
func pathSegments(u *url.URL) ([]string, bool) {
	p := strings.TrimPrefix(u.EscapedPath(), "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil, true
	}

	parts := strings.Split(p, "/")
	for i, part := range parts {
		seg, err := url.PathUnescape(part)
		if err != nil || !safeComponent(seg) {
			return nil, false
		}
		parts[i] = seg
	}
	return parts, true
}

func safeComponent(s string) bool {
	if s == "" || s == "." || s == ".." || len(s) > maxComponentLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' || c == '\\' || c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}
