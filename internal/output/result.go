package output

import (
	"time"
)

// CrawlResult is the report of one crawl run.
type CrawlResult struct {
	Target      string       `json:"target"`
	OutDir      string       `json:"out_dir"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at,omitempty"`
	Stats       CrawlStats   `json:"stats"`
	Pages       []PageRecord `json:"pages"`
	Errors      []CrawlError `json:"errors,omitempty"`
}

// CrawlStats contains statistics about the crawl.
type CrawlStats struct {
	PagesVisited       int64         `json:"pages_visited"`
	PagesSaved         int64         `json:"pages_saved"`
	SaveFailures       int64         `json:"save_failures"`
	LinksEnqueued      int64         `json:"links_enqueued"`
	Downloads          int64         `json:"downloads"`
	AssetsMirrored     int64         `json:"assets_mirrored"`
	AssetBytes         int64         `json:"asset_bytes"`
	AssetWriteFailures int64         `json:"asset_write_failures"`
	RouteErrors        int64         `json:"route_errors"`
	Retries            int64         `json:"retries"`
	ErrorCount         int           `json:"error_count"`
	Duration           time.Duration `json:"duration"`
}

// PageRecord describes one handled page.
type PageRecord struct {
	URL        string    `json:"url"`
	Path       string    `json:"path,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Links      int       `json:"links"`
	Download   bool      `json:"download,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CrawlError is a request that failed after all retries.
type CrawlError struct {
	URL       string    `json:"url"`
	Type      string    `json:"type,omitempty"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Finish stamps the completion time and derived totals.
func (r *CrawlResult) Finish(at time.Time) {
	r.CompletedAt = at
	r.Stats.Duration = at.Sub(r.StartedAt)
	r.Stats.ErrorCount = len(r.Errors)
}
