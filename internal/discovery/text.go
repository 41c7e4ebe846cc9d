package discovery

import (
	"regexp"

	"github.com/PentesterFlow/spa-crawler/internal/scope"
)

var (
	absoluteURLRe   = regexp.MustCompile(`https?://[^\s"'<>]+`)
	schemeRelRe     = regexp.MustCompile(`//[^\s"'<>]+`)
	quotedRootRelRe = regexp.MustCompile(`["'](/[^"']+)["']`)
)

// FromText scrapes absolute, scheme-relative and quoted root-relative URLs
// out of arbitrary text such as HTML or inline scripts.
func FromText(text string, n scope.CandidateNormalizer) []string {
	if text == "" {
		return []string{}
	}
	text = scope.UnescapeSlashes(text)

	candidates := absoluteURLRe.FindAllString(text, -1)
	candidates = append(candidates, schemeRelRe.FindAllString(text, -1)...)
	for _, m := range quotedRootRelRe.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}

	return normalizeAll(n, candidates)
}
