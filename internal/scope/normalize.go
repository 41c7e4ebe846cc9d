// Package scope decides which candidate URLs are same-origin, crawlable pages
// and turns them into canonical crawl keys.
package scope

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PentesterFlow/spa-crawler/internal/errors"
	"github.com/PentesterFlow/spa-crawler/internal/queue"
)

// MaxURLLength bounds candidates lifted out of scraped text.
const MaxURLLength = 2048

const trimCutset = " \t\r\n'\"`"

var unicodeEscapeRe = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)

// CandidateNormalizer turns a raw candidate string into a canonical page URL.
type CandidateNormalizer interface {
	Normalize(raw string) (string, bool)
}

// Normalizer accepts same-origin page URLs relative to a fixed base.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	base        *url.URL
	origin      string
	apiPrefixes []string
}

// NewNormalizer builds a normalizer for base. API prefixes are cleaned to a
// leading slash without trailing slashes; empty prefixes are ignored.
func NewNormalizer(base *url.URL, apiPrefixes []string) *Normalizer {
	prefixes := make([]string, 0, len(apiPrefixes))
	for _, p := range apiPrefixes {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		prefixes = append(prefixes, p)
	}

	return &Normalizer{
		base:        base,
		origin:      Origin(base),
		apiPrefixes: prefixes,
	}
}

// Base returns the crawl base URL.
func (n *Normalizer) Base() *url.URL {
	return n.base
}

// APIPrefixes returns the cleaned API prefixes.
func (n *Normalizer) APIPrefixes() []string {
	return n.apiPrefixes
}

// CanonicalBase returns the canonical string of the base URL.
func (n *Normalizer) CanonicalBase() string {
	return Canonicalize(n.base).String()
}

// Normalize returns the canonical page URL for raw, or false when raw is not
// a same-origin crawlable page.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), trimCutset)
	if !HasAllowedPrefix(s) {
		return "", false
	}

	s = UnescapeUnicode(UnescapeSlashes(s))

	if len(s) > MaxURLLength {
		return "", false
	}

	ref, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	u := n.base.ResolveReference(ref)

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if Origin(u) != n.origin {
		return "", false
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if n.IsAPIPath(p) || LooksLikeAsset(p) {
		return "", false
	}

	return Canonicalize(u).String(), true
}

// NormalizeMany normalizes every string entry of raw, ignoring non-strings
// and rejects, and returns the distinct results sorted.
func (n *Normalizer) NormalizeMany(raw []any) []string {
	found := make(map[string]struct{})
	for _, v := range raw {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if normalized, ok := n.Normalize(s); ok {
			found[normalized] = struct{}{}
		}
	}
	return SortedKeys(found)
}

// Transform re-keys an enqueue candidate on its canonical URL. Candidates
// that fail normalization yield Skip.
func (n *Normalizer) Transform(req queue.Request) errors.Result[queue.Request] {
	normalized, ok := n.Normalize(req.URL)
	if !ok {
		return errors.Skip[queue.Request]()
	}
	req.URL = normalized
	req.UniqueKey = normalized
	return errors.Ok(req)
}

// IsAPIPath reports whether p equals an API prefix or lies beneath one.
func (n *Normalizer) IsAPIPath(p string) bool {
	return LooksLikeAPIPath(p, n.apiPrefixes)
}

// LooksLikeAPIPath reports whether p equals one of prefixes or starts with
// prefix + "/". "/api-v1" is not under "/api".
func LooksLikeAPIPath(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// LooksLikeAsset reports whether p is a static asset rather than a page:
// a Next.js internal path or a file with a known extension.
func LooksLikeAsset(p string) bool {
	return strings.Contains(p, "/_next/") || HasKnownExtension(p)
}

// HasAllowedPrefix reports whether s is absolute http(s) or root-relative.
func HasAllowedPrefix(s string) bool {
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "/")
}

// UnescapeSlashes undoes JSON-style slash escaping.
func UnescapeSlashes(s string) string {
	s = strings.TrimRight(s, `\`)
	s = strings.ReplaceAll(s, `\/`, `/`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

// UnescapeUnicode decodes \uXXXX escapes.
func UnescapeUnicode(s string) string {
	if !strings.Contains(s, `\u`) {
		return s
	}
	return unicodeEscapeRe.ReplaceAllStringFunc(s, func(m string) string {
		code, err := strconv.ParseUint(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(code))
	})
}

// Canonicalize returns a copy of u without fragment and without trailing
// slashes on a non-root path. Query and userinfo are untouched.
func Canonicalize(u *url.URL) *url.URL {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""

	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if (c.Scheme == "http" && c.Port() == "80") || (c.Scheme == "https" && c.Port() == "443") {
		c.Host = strings.TrimSuffix(c.Host, ":"+c.Port())
	}

	if c.Path == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	if c.Path != "/" && strings.HasSuffix(c.Path, "/") {
		c.Path = strings.TrimRight(c.Path, "/")
		if c.Path == "" {
			c.Path = "/"
		}
		c.RawPath = strings.TrimRight(c.RawPath, "/")
	}
	return &c
}

// CanonicalString parses raw and returns its canonical form.
func CanonicalString(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return Canonicalize(u).String(), nil
}

// Origin returns scheme://host[:port] with the host lowercased and default
// ports elided.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()

	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

// SortedKeys returns the keys of set in ascending order.
func SortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
