// Package metrics collects crawl and mirror counters.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// navBuckets are the upper bounds, in milliseconds, of the navigation time
// histogram. The last bucket is open.
var navBuckets = [...]int64{100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Collector collects and aggregates metrics.
type Collector struct {
	// Crawl
	navigations   atomic.Int64
	pagesVisited  atomic.Int64
	pagesSaved    atomic.Int64
	saveFailures  atomic.Int64
	linksEnqueued atomic.Int64
	downloads     atomic.Int64
	retries       atomic.Int64
	errorsTotal   atomic.Int64

	// Mirror
	assetFetches       atomic.Int64
	assetsMirrored     atomic.Int64
	assetBytes         atomic.Int64
	assetWriteFailures atomic.Int64
	assetPassThrough   atomic.Int64
	routeErrors        atomic.Int64

	// Gauges
	queueDepth    atomic.Int64
	activeWorkers atomic.Int64

	navTimeSum  atomic.Int64
	navTimeNum  atomic.Int64
	navTimeHist [len(navBuckets) + 1]atomic.Int64

	errorMu     sync.RWMutex
	errorCounts map[string]*atomic.Int64

	statusMu    sync.RWMutex
	statusCodes map[int]*atomic.Int64

	startMu   sync.RWMutex
	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
		startTime:   time.Now(),
	}
}

// RecordNavigation records a page navigation and how long it took.
func (c *Collector) RecordNavigation(d time.Duration) {
	c.navigations.Add(1)

	ms := d.Milliseconds()
	c.navTimeSum.Add(ms)
	c.navTimeNum.Add(1)
	c.navTimeHist[bucketFor(ms)].Add(1)
}

func bucketFor(ms int64) int {
	for i, bound := range navBuckets {
		if ms < bound {
			return i
		}
	}
	return len(navBuckets)
}

// RecordPageVisited increments handled pages.
func (c *Collector) RecordPageVisited() {
	c.pagesVisited.Add(1)
}

// RecordPageSaved increments saved HTML snapshots.
func (c *Collector) RecordPageSaved() {
	c.pagesSaved.Add(1)
}

// RecordSaveFailure increments failed HTML snapshots.
func (c *Collector) RecordSaveFailure() {
	c.saveFailures.Add(1)
}

// RecordLinksEnqueued adds n accepted frontier pushes.
func (c *Collector) RecordLinksEnqueued(n int) {
	c.linksEnqueued.Add(int64(n))
}

// RecordDownload increments navigations that turned into downloads.
func (c *Collector) RecordDownload() {
	c.downloads.Add(1)
}

// RecordRetry records a retry attempt.
func (c *Collector) RecordRetry() {
	c.retries.Add(1)
}

// RecordError records an error by type.
func (c *Collector) RecordError(errorType string) {
	c.errorsTotal.Add(1)

	c.errorMu.Lock()
	if c.errorCounts[errorType] == nil {
		c.errorCounts[errorType] = &atomic.Int64{}
	}
	c.errorCounts[errorType].Add(1)
	c.errorMu.Unlock()
}

// RecordStatusCode records a document status code.
func (c *Collector) RecordStatusCode(code int) {
	c.statusMu.Lock()
	if c.statusCodes[code] == nil {
		c.statusCodes[code] = &atomic.Int64{}
	}
	c.statusCodes[code].Add(1)
	c.statusMu.Unlock()
}

// RecordAssetFetch increments out-of-band asset fetches.
func (c *Collector) RecordAssetFetch() {
	c.assetFetches.Add(1)
}

// RecordAssetMirrored records a written asset of n bytes.
func (c *Collector) RecordAssetMirrored(n int) {
	c.assetsMirrored.Add(1)
	c.assetBytes.Add(int64(n))
}

// RecordAssetWriteFailure increments failed asset writes.
func (c *Collector) RecordAssetWriteFailure() {
	c.assetWriteFailures.Add(1)
}

// RecordPassThrough increments requests continued without mirroring.
func (c *Collector) RecordPassThrough() {
	c.assetPassThrough.Add(1)
}

// RecordRouteError increments failed interception handlers.
func (c *Collector) RecordRouteError() {
	c.routeErrors.Add(1)
}

// SetQueueDepth sets the current frontier depth.
func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Store(depth)
}

// SetActiveWorkers sets the number of running workers.
func (c *Collector) SetActiveWorkers(n int64) {
	c.activeWorkers.Store(n)
}

// AverageNavigationTime returns the mean navigation time.
func (c *Collector) AverageNavigationTime() time.Duration {
	sum := c.navTimeSum.Load()
	num := c.navTimeNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	c.startMu.RLock()
	start := c.startTime
	c.startMu.RUnlock()

	s := &Snapshot{
		Timestamp:             time.Now(),
		Uptime:                time.Since(start),
		Navigations:           c.navigations.Load(),
		PagesVisited:          c.pagesVisited.Load(),
		PagesSaved:            c.pagesSaved.Load(),
		SaveFailures:          c.saveFailures.Load(),
		LinksEnqueued:         c.linksEnqueued.Load(),
		Downloads:             c.downloads.Load(),
		Retries:               c.retries.Load(),
		ErrorsTotal:           c.errorsTotal.Load(),
		AssetFetches:          c.assetFetches.Load(),
		AssetsMirrored:        c.assetsMirrored.Load(),
		AssetBytes:            c.assetBytes.Load(),
		AssetWriteFailures:    c.assetWriteFailures.Load(),
		AssetPassThrough:      c.assetPassThrough.Load(),
		RouteErrors:           c.routeErrors.Load(),
		QueueDepth:            c.queueDepth.Load(),
		ActiveWorkers:         c.activeWorkers.Load(),
		AverageNavigationTime: c.AverageNavigationTime(),
		ErrorCounts:           make(map[string]int64),
		StatusCodes:           make(map[int]int64),
		NavigationTimeHist:    make([]int64, len(c.navTimeHist)),
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := range c.navTimeHist {
		s.NavigationTimeHist[i] = c.navTimeHist[i].Load()
	}

	return s
}

// Reset resets all metrics.
func (c *Collector) Reset() {
	for _, v := range []*atomic.Int64{
		&c.navigations, &c.pagesVisited, &c.pagesSaved, &c.saveFailures,
		&c.linksEnqueued, &c.downloads, &c.retries, &c.errorsTotal,
		&c.assetFetches, &c.assetsMirrored, &c.assetBytes, &c.assetWriteFailures,
		&c.assetPassThrough, &c.routeErrors, &c.queueDepth, &c.activeWorkers,
		&c.navTimeSum, &c.navTimeNum,
	} {
		v.Store(0)
	}
	for i := range c.navTimeHist {
		c.navTimeHist[i].Store(0)
	}

	c.errorMu.Lock()
	c.errorCounts = make(map[string]*atomic.Int64)
	c.errorMu.Unlock()

	c.statusMu.Lock()
	c.statusCodes = make(map[int]*atomic.Int64)
	c.statusMu.Unlock()

	c.startMu.Lock()
	c.startTime = time.Now()
	c.startMu.Unlock()
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp             time.Time        `json:"timestamp"`
	Uptime                time.Duration    `json:"uptime"`
	Navigations           int64            `json:"navigations"`
	PagesVisited          int64            `json:"pages_visited"`
	PagesSaved            int64            `json:"pages_saved"`
	SaveFailures          int64            `json:"save_failures"`
	LinksEnqueued         int64            `json:"links_enqueued"`
	Downloads             int64            `json:"downloads"`
	Retries               int64            `json:"retries"`
	ErrorsTotal           int64            `json:"errors_total"`
	AssetFetches          int64            `json:"asset_fetches"`
	AssetsMirrored        int64            `json:"assets_mirrored"`
	AssetBytes            int64            `json:"asset_bytes"`
	AssetWriteFailures    int64            `json:"asset_write_failures"`
	AssetPassThrough      int64            `json:"asset_pass_through"`
	RouteErrors           int64            `json:"route_errors"`
	QueueDepth            int64            `json:"queue_depth"`
	ActiveWorkers         int64            `json:"active_workers"`
	AverageNavigationTime time.Duration    `json:"average_navigation_time"`
	ErrorCounts           map[string]int64 `json:"error_counts"`
	StatusCodes           map[int]int64    `json:"status_codes"`
	NavigationTimeHist    []int64          `json:"navigation_time_histogram"`
}

// ErrorRate returns errors per navigation.
func (s *Snapshot) ErrorRate() float64 {
	if s.Navigations == 0 {
		return 0
	}
	return float64(s.ErrorsTotal) / float64(s.Navigations)
}

// Summary returns the headline numbers for the end-of-crawl log line.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":          s.Uptime.String(),
		"pages_visited":   s.PagesVisited,
		"pages_saved":     s.PagesSaved,
		"links_enqueued":  s.LinksEnqueued,
		"assets_mirrored": s.AssetsMirrored,
		"asset_bytes":     s.AssetBytes,
		"errors_total":    s.ErrorsTotal,
		"error_rate":      s.ErrorRate(),
		"avg_nav_ms":      s.AverageNavigationTime.Milliseconds(),
	}
}

// Global metrics collector.
var (
	globalMu        sync.RWMutex
	globalCollector = New()
)

// SetGlobal sets the global metrics collector.
func SetGlobal(c *Collector) {
	globalMu.Lock()
	globalCollector = c
	globalMu.Unlock()
}

// Global returns the global metrics collector.
func Global() *Collector {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalCollector
}
