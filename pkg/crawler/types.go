// Package crawler crawls a single-page application with a real browser and
// mirrors it to disk as static HTML and same-origin assets.
package crawler

import (
	"github.com/PentesterFlow/spa-crawler/internal/output"
)

// CrawlResult is the report returned by Start.
type CrawlResult = output.CrawlResult

// CrawlStats contains statistics about the crawl.
type CrawlStats = output.CrawlStats

// PageRecord describes one handled page.
type PageRecord = output.PageRecord

// CrawlError is a request that failed after all retries.
type CrawlError = output.CrawlError
