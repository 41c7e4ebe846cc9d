package crawler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/PentesterFlow/spa-crawler/internal/browser"
	"github.com/PentesterFlow/spa-crawler/internal/discovery"
	"github.com/PentesterFlow/spa-crawler/internal/errors"
	"github.com/PentesterFlow/spa-crawler/internal/logger"
	"github.com/PentesterFlow/spa-crawler/internal/mirror"
	"github.com/PentesterFlow/spa-crawler/internal/queue"
)

// handlePage runs the lifecycle of an ordinary page: settle, interact,
// snapshot, discover, enqueue.
func (c *Crawler) handlePage(ctx context.Context, page browser.Page, req *queue.Request, log *logger.Logger) *PageRecord {
	cfg := c.config

	settled := browser.WaitForStable(ctx, page, browser.StableTimeouts{
		DOMContentLoaded: cfg.Timeouts.DOMContentLoaded.Duration,
		NetworkIdle:      cfg.Timeouts.NetworkIdle.Duration,
	})
	for _, r := range settled {
		r.Handle(log, "wait")
	}
	for _, r := range browser.SoftInteract(ctx, page, cfg.Timeouts.Scroll.Duration) {
		r.Handle(log, "interact")
	}

	record := &PageRecord{URL: req.URL, Timestamp: time.Now()}

	html, saved := c.savePage(ctx, page, req, log)
	record.Path = saved

	// The DOM channel does not need the captured markup.
	found, err := c.engine.FromPage(ctx, page, html)
	if err != nil {
		c.discoverError(req, err, log)
	}
	record.Links += c.enqueueURLs(found)

	record.Links += c.enqueueLinks(ctx, page, req, log)
	return record
}

// savePage writes the rendered HTML to pages/.../index.html and returns the
// captured markup and the written path.
func (c *Crawler) savePage(ctx context.Context, page browser.Page, req *queue.Request, log *logger.Logger) (string, string) {
	target := loadedURL(page.URL(), req.URL)

	html, err := page.HTML(ctx)
	if err != nil {
		c.metrics.RecordSaveFailure()
		log.Errorf("[save-failed] %s: %v", target, err)
		return "", ""
	}

	u, err := url.Parse(target)
	if err != nil {
		c.metrics.RecordSaveFailure()
		log.Errorf("[save-failed] %s: %v", target, err)
		return html, ""
	}
	path, ok := c.mirror.Resolver().PagePath(u)
	if !ok {
		c.metrics.RecordSaveFailure()
		log.Errorf("[save-failed] %s: unmappable path", target)
		return html, ""
	}

	if err := mirror.WritePage(path, html); err != nil {
		c.metrics.RecordSaveFailure()
		log.Errorf("[save-failed] %s -> %s: %v", target, path, err)
		return html, ""
	}

	c.metrics.RecordPageSaved()
	log.Event(logger.InfoLevel).Str("path", path).Msgf("[saved] %s -> %s", target, path)
	return html, path
}

// loadedURL prefers the page's current URL unless the page never left the
// blank document.
func loadedURL(current, requested string) string {
	if current == "" || current == "about:blank" {
		return requested
	}
	u, err := url.Parse(current)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return requested
	}
	return current
}

// enqueueLinks enqueues the DOM links accepted by the same-hostname filter
// and the normalizer.
func (c *Crawler) enqueueLinks(ctx context.Context, page browser.Page, req *queue.Request, log *logger.Logger) int {
	links, err := discovery.Links(ctx, page)
	if err != nil {
		c.discoverError(req, err, log)
		return 0
	}

	accepted := 0
	for _, link := range c.linkFilter.Filter(links) {
		res := c.normalizer.Transform(queue.Request{URL: link})
		if !res.IsOk() {
			continue
		}
		next := res.Value
		if c.frontier.Push(&next) {
			accepted++
		}
	}

	c.metrics.RecordLinksEnqueued(accepted)
	return accepted
}

// discoverError records a failed discovery step. It never fails the page.
func (c *Crawler) discoverError(req *queue.Request, err error, log *logger.Logger) {
	derr := errors.NewDiscoveryError(req.URL, err)
	c.metrics.RecordError(derr.Type.String())
	log.Warnf("[discover-error] %s: %v", req.URL, derr)
}

// pageGuard closes a page exactly once.
type pageGuard struct {
	page browser.Page
	once sync.Once
	err  error
}

func (g *pageGuard) Close() error {
	g.once.Do(func() {
		g.err = g.page.Close()
	})
	return g.err
}
