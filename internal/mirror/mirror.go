// Package mirror persists the same-origin responses a page loads so the
// crawled site can be served statically.
package mirror

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/spa-crawler/internal/browser"
	"github.com/PentesterFlow/spa-crawler/internal/discovery"
	crawlerrors "github.com/PentesterFlow/spa-crawler/internal/errors"
	"github.com/PentesterFlow/spa-crawler/internal/logger"
	"github.com/PentesterFlow/spa-crawler/internal/metrics"
	"github.com/PentesterFlow/spa-crawler/internal/scope"
)

// DefaultFetchTimeout bounds each out-of-band asset fetch.
const DefaultFetchTimeout = 60 * time.Second

// PageState is the per-page bookkeeping owned by the crawler.
type PageState struct {
	MirrorAttached bool
	Session        *Session
}

// Options configures a Mirror.
type Options struct {
	OutDir       string
	Base         *url.URL
	APIPrefixes  []string
	Normalizer   scope.CandidateNormalizer
	FetchTimeout time.Duration
	// StrictClaims makes concurrent pages skip a destination another page
	// is writing. Otherwise the last writer wins.
	StrictClaims bool
	Logger       *logger.Logger
	Metrics      *metrics.Collector
}

// Mirror installs interception handlers that write assets to disk.
type Mirror struct {
	resolver     *Resolver
	normalizer   scope.CandidateNormalizer
	origin       string
	apiPrefixes  []string
	fetchTimeout time.Duration
	claims       *ClaimTable
	log          *logger.Logger
	metrics      *metrics.Collector
}

// New creates a mirror.
func New(opts Options) *Mirror {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Global()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = scope.NewNormalizer(opts.Base, opts.APIPrefixes)
	}

	m := &Mirror{
		resolver:     NewResolver(opts.OutDir, opts.Base, opts.APIPrefixes),
		normalizer:   opts.Normalizer,
		origin:       scope.Origin(opts.Base),
		apiPrefixes:  opts.APIPrefixes,
		fetchTimeout: opts.FetchTimeout,
		log:          opts.Logger.WithComponent("mirror"),
		metrics:      opts.Metrics,
	}
	if opts.StrictClaims {
		m.claims = NewClaimTable()
	}
	return m
}

// Resolver returns the path resolver.
func (m *Mirror) Resolver() *Resolver {
	return m.resolver
}

// Attach installs the mirroring route on page. It is a no-op when st
// already records an attachment. Discovered page URLs are passed to enqueue.
func (m *Mirror) Attach(page browser.Page, st *PageState, enqueue func([]string)) error {
	if st.MirrorAttached {
		return nil
	}

	session := NewSession(enqueue)
	if err := page.Route(func(x browser.Exchange) { m.Handle(session, x) }); err != nil {
		return fmt.Errorf("install route: %w", err)
	}

	st.MirrorAttached = true
	st.Session = session
	return nil
}

// Handle decides what to do with one intercepted request. Every request is
// either continued or fulfilled.
func (m *Mirror) Handle(s *Session, x browser.Exchange) {
	if err := m.route(s, x); err != nil {
		m.metrics.RecordRouteError()
		m.metrics.RecordError(crawlerrors.Categorize(err, x.URL().String()).Type.String())
		m.log.Warnf("[route-error] %s (%s): %v", x.URL(), x.ResourceType(), err)
		_ = x.Continue()
	}
}

func (m *Mirror) route(s *Session, x browser.Exchange) error {
	if x.ResourceType() == browser.ResourceDocument {
		return m.pass(x)
	}

	u := x.URL()
	if scope.Origin(u) != m.origin {
		return m.pass(x)
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if scope.LooksLikeAPIPath(p, m.apiPrefixes) {
		return m.pass(x)
	}

	key := RequestKey(u)
	if !s.begin(key) {
		return m.pass(x)
	}

	hint, ok := m.resolver.AssetDestination(u, "")
	if !ok {
		s.finish(key, false)
		return m.pass(x)
	}
	if Exists(hint) {
		s.finish(key, true)
		return m.pass(x)
	}

	mirrored := false
	defer func() { s.finish(key, mirrored) }()

	s.fetchAttempts.Add(1)
	m.metrics.RecordAssetFetch()

	resp, err := x.Fetch(m.fetchTimeout)
	if err != nil {
		return crawlerrors.NewMirrorError(u.String(), "fetch", err)
	}

	if isRedirect(resp.Status) || !isSuccess(resp.Status) {
		return m.fulfill(u, x, resp)
	}

	if dest, ok := m.resolver.AssetDestination(u, resp.ContentType()); ok && len(resp.Body) > 0 {
		mirrored = m.write(u, dest, resp.Body)
	}

	if isNextData(u.Path) && len(resp.Body) > 0 {
		if urls := discovery.FromJSON(resp.Body, m.normalizer); len(urls) > 0 {
			s.enqueueURLs(urls)
		}
	}

	return m.fulfill(u, x, resp)
}

func (m *Mirror) fulfill(u *url.URL, x browser.Exchange, resp *browser.Response) error {
	if err := x.Fulfill(resp); err != nil {
		return crawlerrors.NewMirrorError(u.String(), "fulfill", err)
	}
	return nil
}

func (m *Mirror) write(u *url.URL, dest string, body []byte) bool {
	if m.claims != nil {
		if !m.claims.Claim(dest) {
			return false
		}
		defer m.claims.Release(dest)
	}

	if err := WriteOverwrite(dest, body); err != nil {
		m.metrics.RecordAssetWriteFailure()
		m.log.Warnf("[asset-write-failed] %s -> %s", u, dest)
		return false
	}

	m.metrics.RecordAssetMirrored(len(body))
	m.log.Infof("[asset] %s -> %s", u, dest)
	return true
}

func (m *Mirror) pass(x browser.Exchange) error {
	m.metrics.RecordPassThrough()
	return x.Continue()
}

func isSuccess(status int) bool {
	return status >= 200 && status < 400
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

func isNextData(p string) bool {
	return strings.Contains(p, "/_next/data/") && strings.HasSuffix(p, ".json")
}

// Session tracks the URLs one page has mirrored or is fetching.
type Session struct {
	mu       sync.Mutex
	mirrored map[string]struct{}
	inflight map[string]struct{}

	fetchAttempts atomic.Int64
	enqueue       func([]string)
}

// NewSession creates an empty session. enqueue may be nil.
func NewSession(enqueue func([]string)) *Session {
	return &Session{
		mirrored: make(map[string]struct{}),
		inflight: make(map[string]struct{}),
		enqueue:  enqueue,
	}
}

// begin marks key in flight unless it is already mirrored or in flight.
func (s *Session) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mirrored[key]; ok {
		return false
	}
	if _, ok := s.inflight[key]; ok {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Session) finish(key string, mirrored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
	if mirrored {
		s.mirrored[key] = struct{}{}
	}
}

func (s *Session) enqueueURLs(urls []string) {
	if s.enqueue != nil {
		s.enqueue(urls)
	}
}

// FetchAttempts returns how many out-of-band fetches the session made.
func (s *Session) FetchAttempts() int64 {
	return s.fetchAttempts.Load()
}

// Mirrored returns how many URLs the session considers mirrored.
func (s *Session) Mirrored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mirrored)
}

// IsMirrored reports whether key is marked mirrored.
func (s *Session) IsMirrored(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mirrored[key]
	return ok
}

// InFlight returns how many fetches are running.
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
