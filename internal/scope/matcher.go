package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// MatcherKind selects how a link pattern is interpreted.
type MatcherKind string

const (
	// KindRegex matches when the regular expression is found anywhere in the URL.
	KindRegex MatcherKind = "regex"
	// KindGlob matches the whole URL; "*" stays within a path segment and "**" crosses segments.
	KindGlob MatcherKind = "glob"
)

// Matcher is a compiled include/exclude link pattern.
type Matcher struct {
	Kind    MatcherKind
	Pattern string

	re *regexp.Regexp
	g  glob.Glob
}

// NewMatcher compiles pattern according to kind.
func NewMatcher(kind MatcherKind, pattern string) (*Matcher, error) {
	m := &Matcher{Kind: kind, Pattern: pattern}

	switch kind {
	case KindRegex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		m.re = re
	case KindGlob:
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		m.g = g
	default:
		return nil, fmt.Errorf("unknown matcher kind %q", kind)
	}

	return m, nil
}

// MustMatcher is NewMatcher that panics on error. Intended for literals.
func MustMatcher(kind MatcherKind, pattern string) *Matcher {
	m, err := NewMatcher(kind, pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports whether s matches.
func (m *Matcher) Match(s string) bool {
	if m == nil {
		return false
	}
	switch {
	case m.re != nil:
		return m.re.MatchString(s)
	case m.g != nil:
		return m.g.Match(s)
	default:
		return false
	}
}

// String returns the source pattern.
func (m *Matcher) String() string {
	return m.Pattern
}

// LinkFilter implements the same-hostname enqueue strategy with
// include/exclude matchers.
type LinkFilter struct {
	hostname string
	include  []*Matcher
	exclude  []*Matcher
}

// NewLinkFilter returns a filter for links on base's hostname.
func NewLinkFilter(base *url.URL, include, exclude []*Matcher) *LinkFilter {
	return &LinkFilter{
		hostname: strings.ToLower(base.Hostname()),
		include:  include,
		exclude:  exclude,
	}
}

// Allow reports whether the absolute candidate should be enqueued.
func (f *LinkFilter) Allow(candidate string) bool {
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if strings.ToLower(u.Hostname()) != f.hostname {
		return false
	}

	for _, m := range f.exclude {
		if m.Match(candidate) {
			return false
		}
	}

	if len(f.include) == 0 {
		return true
	}
	for _, m := range f.include {
		if m.Match(candidate) {
			return true
		}
	}
	return false
}

// Filter returns the candidates that Allow accepts, preserving order.
func (f *LinkFilter) Filter(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if f.Allow(c) {
			out = append(out, c)
		}
	}
	return out
}
