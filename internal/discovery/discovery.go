// Package discovery extracts crawlable page URLs from rendered pages, JSON
// payloads and raw markup.
package discovery

import (
	"context"

	"github.com/PentesterFlow/spa-crawler/internal/browser"
	"github.com/PentesterFlow/spa-crawler/internal/scope"
)

// Engine runs every discovery channel against one normalizer.
type Engine struct {
	normalizer scope.CandidateNormalizer
}

// NewEngine creates a discovery engine.
func NewEngine(n scope.CandidateNormalizer) *Engine {
	return &Engine{normalizer: n}
}

// FromHTML returns the URLs found in the __NEXT_DATA__ block and by scraping
// the markup as text.
func (e *Engine) FromHTML(html string) []string {
	set := make(map[string]struct{})

	if data := NextData(html); data != "" {
		for _, u := range FromJSON([]byte(data), e.normalizer) {
			set[u] = struct{}{}
		}
	}
	for _, u := range FromText(html, e.normalizer) {
		set[u] = struct{}{}
	}

	return scope.SortedKeys(set)
}

// FromPage unions the DOM channel with FromHTML. A DOM evaluation failure is
// returned together with the markup results.
func (e *Engine) FromPage(ctx context.Context, ev browser.Evaluator, html string) ([]string, error) {
	found := e.FromHTML(html)

	dom, err := FromDOM(ctx, ev, e.normalizer)
	if err != nil {
		return found, err
	}

	return union(found, dom), nil
}

// normalizeAll normalizes candidates and returns the distinct accepted values sorted.
func normalizeAll(n scope.CandidateNormalizer, candidates []string) []string {
	set := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if u, ok := n.Normalize(c); ok {
			set[u] = struct{}{}
		}
	}
	return scope.SortedKeys(set)
}

func union(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	return scope.SortedKeys(set)
}
