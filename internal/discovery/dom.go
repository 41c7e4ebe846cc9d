package discovery

import (
	"context"
	"fmt"

	"github.com/PentesterFlow/spa-crawler/internal/browser"
	"github.com/PentesterFlow/spa-crawler/internal/scope"
)

// FromDOM lists the links of the rendered document by evaluating the link
// extraction snippet in the page, then normalizes them.
func FromDOM(ctx context.Context, ev browser.Evaluator, n scope.CandidateNormalizer) ([]string, error) {
	links, err := Links(ctx, ev)
	if err != nil {
		return nil, err
	}
	return normalizeAll(n, links), nil
}

// Links returns the raw absolute hrefs of the rendered document without
// normalization, for link-filter based enqueueing.
func Links(ctx context.Context, ev browser.Evaluator) ([]string, error) {
	js, err := browser.Script(browser.ExtractLinksScript)
	if err != nil {
		return nil, err
	}

	res, err := ev.Eval(ctx, js)
	if err != nil {
		return nil, fmt.Errorf("evaluate link extraction: %w", err)
	}

	values := res.Arr()
	links := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.Val().(string); ok && s != "" {
			links = append(links, s)
		}
	}
	return links, nil
}
