package crawler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/spa-crawler/internal/auth"
	"github.com/PentesterFlow/spa-crawler/internal/browser"
	"github.com/PentesterFlow/spa-crawler/internal/discovery"
	"github.com/PentesterFlow/spa-crawler/internal/errors"
	"github.com/PentesterFlow/spa-crawler/internal/logger"
	"github.com/PentesterFlow/spa-crawler/internal/metrics"
	"github.com/PentesterFlow/spa-crawler/internal/mirror"
	"github.com/PentesterFlow/spa-crawler/internal/output"
	"github.com/PentesterFlow/spa-crawler/internal/queue"
	"github.com/PentesterFlow/spa-crawler/internal/ratelimit"
	"github.com/PentesterFlow/spa-crawler/internal/scope"
)

// Crawler is the main crawler orchestrator.
type Crawler struct {
	config      *Config
	browser     browser.Browser
	ownsBrowser bool

	frontier   *queue.Frontier
	normalizer *scope.Normalizer
	linkFilter *scope.LinkFilter
	engine     *discovery.Engine
	mirror     *mirror.Mirror
	login      *auth.FormLogin
	limiter    *ratelimit.Limiter
	retrier    *errors.Retrier
	logger     *logger.Logger
	metrics    *metrics.Collector

	// events streams page and error records as JSON lines.
	events output.Writer

	// launch starts the browser when none was injected.
	launch func(browser.Config) (browser.Browser, error)

	mu      sync.Mutex
	running atomic.Bool
	results *CrawlResult
	pool    *pool
}

// New creates a crawler. The configuration is validated here, so a bad
// configuration fails before any browser is opened.
func New(opts ...Option) (*Crawler, error) {
	c := &Crawler{
		config: DefaultConfig(),
		launch: launchBrowser,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	cfg := c.config

	if c.logger == nil {
		level, _ := logger.Setup(cfg.Verbose, cfg.Quiet)
		c.logger = logger.New(logger.Config{
			Level:     level,
			Pretty:    true,
			Component: "crawler",
		})
	} else {
		c.logger = c.logger.WithComponent("crawler")
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}

	c.frontier = queue.NewFrontier(0)
	c.normalizer = scope.NewNormalizer(cfg.Base(), cfg.APIPathPrefixes)
	c.linkFilter = scope.NewLinkFilter(cfg.Base(), cfg.IncludeMatchers(), cfg.ExcludeMatchers())
	c.engine = discovery.NewEngine(c.normalizer)
	c.limiter = ratelimit.New(cfg.RateLimit, 1)

	c.mirror = mirror.New(mirror.Options{
		OutDir:       cfg.OutDir,
		Base:         cfg.Base(),
		APIPrefixes:  cfg.APIPathPrefixes,
		Normalizer:   c.normalizer,
		FetchTimeout: mirror.DefaultFetchTimeout,
		StrictClaims: cfg.StrictAssetClaims,
		Logger:       c.logger,
		Metrics:      c.metrics,
	})

	if cfg.LoginRequired {
		c.login = auth.NewFormLogin(auth.Config{
			HomeURL:          c.normalizer.CanonicalBase(),
			LoginPath:        cfg.LoginPath,
			Credentials:      auth.Credentials{Login: cfg.Login, Password: cfg.Password},
			LoginSelector:    cfg.LoginInputSelector,
			PasswordSelector: cfg.PasswordInputSelector,
			TypingDelay:      cfg.TypingDelay.Duration,
			Stable: browser.StableTimeouts{
				DOMContentLoaded: cfg.Timeouts.DOMContentLoaded.Duration,
				NetworkIdle:      cfg.Timeouts.NetworkIdle.Duration,
				Rerender:         cfg.Timeouts.Rerender.Duration,
			},
			RedirectTimeout: cfg.Timeouts.LoginRedirect.Duration,
		}, c.logger)
	}

	retryCfg := errors.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRequestRetries
	c.retrier = errors.NewRetrier(retryCfg)
	c.retrier.OnRetry(func(attempt int, err error) {
		c.metrics.RecordRetry()
		c.logger.Warnf("retry %d: %v", attempt, err)
	})

	return c, nil
}

func launchBrowser(cfg browser.Config) (browser.Browser, error) {
	return browser.Launch(cfg)
}

// Run validates cfg, crawls the site and writes the optional report.
func Run(ctx context.Context, cfg *Config, opts ...Option) error {
	c, err := New(append([]Option{WithConfig(cfg)}, opts...)...)
	if err != nil {
		return err
	}
	_, err = c.Start(ctx)
	return err
}

// Start seeds the frontier and crawls until it drains or ctx is cancelled.
// A failed login aborts the crawl with its error. Start may be called once.
func (c *Crawler) Start(ctx context.Context) (*CrawlResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("crawler is already running")
	}
	defer c.running.Store(false)

	cfg := c.config

	c.mu.Lock()
	started := c.results != nil
	c.mu.Unlock()
	if started {
		return nil, fmt.Errorf("crawler can only be started once")
	}

	if c.browser == nil {
		bcfg := browser.DefaultConfig()
		bcfg.Headless = cfg.Headless
		bcfg.FetchTimeout = mirror.DefaultFetchTimeout
		b, err := c.launch(bcfg)
		if err != nil {
			return nil, errors.NewBrowserError(cfg.BaseURL, "launch", err)
		}
		c.browser = b
		c.ownsBrowser = true
	}
	defer c.cleanup()

	if err := c.openEvents(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.results = &CrawlResult{
		Target:    cfg.BaseURL,
		OutDir:    cfg.OutDir,
		StartedAt: time.Now(),
		Pages:     make([]PageRecord, 0),
	}
	c.mu.Unlock()

	if cfg.LoginRequired {
		if err := c.runLogin(ctx); err != nil {
			return c.finish(), err
		}
	}

	c.seed()

	handle := func(ctx context.Context, req *queue.Request) {
		_ = c.process(ctx, req)
	}
	c.pool = newPool(cfg.Concurrency.Min, cfg.Concurrency.Desired, c.frontier, handle, c.metrics)
	if err := c.pool.Run(ctx); err != nil {
		return c.finish(), err
	}

	result := c.finish()
	if ctx.Err() != nil {
		return result, errors.NewCancelledError(cfg.BaseURL, "crawl")
	}
	return result, nil
}

// runLogin pushes the login request and handles it alone, before any other
// request is seeded.
func (c *Crawler) runLogin(ctx context.Context) error {
	req := &queue.Request{
		URL:       c.config.LoginURL(),
		Label:     queue.LabelLogin,
		UniqueKey: c.config.LoginURL(),
	}
	c.frontier.Push(req)

	next, err := c.frontier.Next(ctx)
	if err != nil {
		return errors.NewCancelledError(req.URL, "login")
	}
	defer c.frontier.Done(next)

	return c.process(ctx, next)
}

// seed pushes the canonical base URL and the additional entrypoints.
func (c *Crawler) seed() {
	urls := append([]string{c.normalizer.CanonicalBase()}, c.config.Entrypoints()...)
	c.enqueueURLs(urls)
}

// enqueueURLs pushes already-normalized page URLs and returns how many the
// frontier accepted.
func (c *Crawler) enqueueURLs(urls []string) int {
	accepted := 0
	for _, u := range urls {
		if c.frontier.Push(&queue.Request{URL: u, UniqueKey: u}) {
			accepted++
		}
	}
	c.metrics.RecordLinksEnqueued(accepted)
	c.metrics.SetQueueDepth(int64(c.frontier.Len()))
	return accepted
}

func (c *Crawler) enqueue(urls []string) {
	c.enqueueURLs(urls)
}

// process visits req with retries and records the outcome. The returned
// error is the last one seen when every attempt failed.
func (c *Crawler) process(ctx context.Context, req *queue.Request) error {
	res := c.retrier.Do(ctx, "visit", req.URL, func(ctx context.Context) error {
		return c.visit(ctx, req)
	})
	if res.Success {
		return nil
	}

	ce := errors.Categorize(res.LastError, req.URL)
	c.metrics.RecordError(ce.Type.String())
	c.logger.WithURL(req.URL).Errorf("request failed after %d attempts: %v", res.Attempts, res.LastError)
	c.addError(CrawlError{
		URL:       req.URL,
		Type:      ce.Type.String(),
		Error:     res.LastError.Error(),
		Attempts:  res.Attempts,
		Timestamp: time.Now(),
	})
	return res.LastError
}

// visit is one attempt: open a fresh page, hook it, navigate, check the
// status and dispatch on the label. The page is closed on every path.
func (c *Crawler) visit(ctx context.Context, req *queue.Request) error {
	tag := "page"
	if req.IsLogin() {
		tag = "login"
	}
	log := c.logger.WithURL(req.URL)

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.NewCancelledError(req.URL, "rate limit")
	}

	page, err := c.browser.NewPage(ctx)
	if err != nil {
		return errors.NewBrowserError(req.URL, "new page", err)
	}
	guard := &pageGuard{page: page}
	defer guard.Close()

	log.Infof("[%s] %s", tag, req.URL)

	state := &mirror.PageState{}
	downloaded := c.preNavigation(page, state, log)

	start := time.Now()
	err = page.Navigate(ctx, req.URL)
	c.metrics.RecordNavigation(time.Since(start))
	if err != nil {
		if isDownload(err, downloaded) {
			c.recordDownload(req, log)
			return nil
		}
		return navigationError(req.URL, err)
	}

	status := page.StatusCode(ctx)
	if status > 0 {
		c.metrics.RecordStatusCode(status)
	}
	if serr := errors.CategorizeHTTPStatus(status, req.URL, c.config.IgnoreHTTPErrorStatusCodes); serr != nil {
		return serr
	}

	if req.IsLogin() {
		_, err = c.login.Run(ctx, page, c.enqueue)
		if err != nil && isDownload(err, downloaded) {
			c.recordDownload(req, log)
			return nil
		}
		return err
	}

	record := c.handlePage(ctx, page, req, log)
	record.StatusCode = status
	c.metrics.RecordPageVisited()
	c.addPage(*record)
	return nil
}

// preNavigation installs the asset mirror and the download hook before the
// page loads anything. The returned flag is set once a download starts.
func (c *Crawler) preNavigation(page browser.Page, state *mirror.PageState, log *logger.Logger) *atomic.Bool {
	if err := c.mirror.Attach(page, state, c.enqueue); err != nil {
		log.Warnf("[route-mirror-attach-error] %v", err)
	}

	downloaded := &atomic.Bool{}
	page.OnDownload(func(u string) {
		downloaded.Store(true)
		log.Infof("[download] %s", u)
	})
	return downloaded
}

// isDownload reports whether err only means the target was a file. Chrome
// aborts the navigation with net::ERR_ABORTED once a download has begun.
func isDownload(err error, downloaded *atomic.Bool) bool {
	if browser.IsDownloadError(err) {
		return true
	}
	return downloaded.Load() && strings.Contains(err.Error(), "net::ERR_ABORTED")
}

func (c *Crawler) recordDownload(req *queue.Request, log *logger.Logger) {
	c.metrics.RecordDownload()
	log.Infof("[goto-download] %s", req.URL)
	c.addPage(PageRecord{URL: req.URL, Download: true, Timestamp: time.Now()})
}

func navigationError(url string, err error) error {
	ce := errors.Categorize(err, url)
	if ce.Type == errors.Unknown {
		return errors.NewNavigationError(url, err)
	}
	return ce
}

func (c *Crawler) addPage(r PageRecord) {
	c.mu.Lock()
	c.results.Pages = append(c.results.Pages, r)
	c.mu.Unlock()

	if c.events != nil {
		if err := c.events.WritePage(&r); err != nil {
			c.logger.Warnf("failed to write page event: %v", err)
		}
	}
}

func (c *Crawler) addError(e CrawlError) {
	c.mu.Lock()
	c.results.Errors = append(c.results.Errors, e)
	c.mu.Unlock()

	if c.events != nil {
		if err := c.events.WriteError(&e); err != nil {
			c.logger.Warnf("failed to write error event: %v", err)
		}
	}
}

// openEvents creates the events file when one is configured.
func (c *Crawler) openEvents() error {
	path := c.config.EventsFile
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.NewConfigError("events_file: %v", err)
	}
	c.events = output.NewWriter(f, output.Config{Format: "json", Stream: true, FilePath: path})
	return nil
}

// finish fills the statistics, logs the summary and writes the report.
func (c *Crawler) finish() *CrawlResult {
	snap := c.metrics.Snapshot()

	c.mu.Lock()
	r := c.results
	r.Stats = CrawlStats{
		PagesVisited:       snap.PagesVisited,
		PagesSaved:         snap.PagesSaved,
		SaveFailures:       snap.SaveFailures,
		LinksEnqueued:      snap.LinksEnqueued,
		Downloads:          snap.Downloads,
		AssetsMirrored:     snap.AssetsMirrored,
		AssetBytes:         snap.AssetBytes,
		AssetWriteFailures: snap.AssetWriteFailures,
		RouteErrors:        snap.RouteErrors,
		Retries:            snap.Retries,
	}
	r.Finish(time.Now())
	c.mu.Unlock()

	c.logger.StatsEvent(snap.Summary())

	if path := c.config.ReportFile; path != "" {
		if err := output.WriteFile(path, r); err != nil {
			c.logger.Errorf("failed to write report %s: %v", path, err)
		}
	}
	return r
}

func (c *Crawler) cleanup() {
	c.frontier.Close()
	if c.events != nil {
		_ = c.events.Close()
	}
	if c.ownsBrowser && c.browser != nil {
		if err := c.browser.Close(); err != nil {
			c.logger.Warnf("failed to close browser: %v", err)
		}
	}
}

// Config returns the validated configuration.
func (c *Crawler) Config() *Config {
	return c.config
}

// Frontier returns the request frontier.
func (c *Crawler) Frontier() *queue.Frontier {
	return c.frontier
}

// IsRunning reports whether Start is in progress.
func (c *Crawler) IsRunning() bool {
	return c.running.Load()
}
