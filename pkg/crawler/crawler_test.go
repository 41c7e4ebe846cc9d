package crawler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PentesterFlow/spa-crawler/internal/browser"
	"github.com/PentesterFlow/spa-crawler/internal/browser/browsertest"
	"github.com/PentesterFlow/spa-crawler/internal/errors"
	"github.com/PentesterFlow/spa-crawler/internal/logger"
	"github.com/PentesterFlow/spa-crawler/internal/metrics"
	"github.com/PentesterFlow/spa-crawler/internal/queue"
)

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = "https://example.com"
	cfg.LoginRequired = false
	cfg.OutDir = t.TempDir()
	cfg.Concurrency = ConcurrencyConfig{Min: 1, Max: 1, Desired: 1}
	cfg.MaxRequestRetries = 0
	cfg.TypingDelay = D(0)
	cfg.Timeouts.Rerender = D(time.Millisecond)
	cfg.Timeouts.LoginRedirect = D(10 * time.Millisecond)
	return cfg
}

func newTestCrawler(t *testing.T, cfg *Config, fake *browsertest.Browser, opts ...Option) (*Crawler, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	log := logger.New(logger.Config{Level: logger.DebugLevel, Output: buf})
	all := append([]Option{WithConfig(cfg), WithBrowser(fake), WithLogger(log), WithMetrics(metrics.New())}, opts...)
	c, err := New(all...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, buf
}

func linksScript(t *testing.T) string {
	t.Helper()
	js, err := browser.Script(browser.ExtractLinksScript)
	if err != nil {
		t.Fatalf("Script() error = %v", err)
	}
	return js
}

// pageWithLinks returns pages whose DOM lists links.
func pageWithLinks(script string, links ...string) func() *browsertest.Page {
	return func() *browsertest.Page {
		p := browsertest.NewPage()
		p.HTMLContent = "<html><body>app</body></html>"
		p.EvalFunc = func(js string) (any, error) {
			if js != script {
				return nil, nil
			}
			out := make([]any, len(links))
			for i, l := range links {
				out[i] = l
			}
			return out, nil
		}
		return p
	}
}

func navigated(fake *browsertest.Browser) []string {
	var out []string
	for _, p := range fake.Pages {
		out = append(out, p.Navigated...)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// New() Tests
// =============================================================================

func TestNew_ValidatesBeforeBrowser(t *testing.T) {
	cfg := testConfig(t)
	cfg.LoginRequired = true
	cfg.LoginPath = "/"
	cfg.Login = "user"
	cfg.Password = "secret"

	fake := &browsertest.Browser{}
	_, err := New(WithConfig(cfg), WithBrowser(fake), WithLogger(logger.Nop()))
	if err == nil {
		t.Fatal("New() error = nil, want config error")
	}
	if !errors.IsConfigError(err) {
		t.Errorf("IsConfigError(%v) = false, want true", err)
	}
	if !strings.Contains(err.Error(), "login_path '/' is not supported") {
		t.Errorf("error = %q, want login_path message", err.Error())
	}
	if fake.Opened() != 0 {
		t.Errorf("Opened() = %d, want 0", fake.Opened())
	}
}

func TestNew_Options(t *testing.T) {
	fake := &browsertest.Browser{}
	c, err := New(
		WithBaseURL("https://example.com/app/"),
		WithoutLogin(),
		WithConcurrency(2, 8, 4),
		WithOutDir(t.TempDir()),
		WithEntrypoints("/docs"),
		WithRateLimit(5),
		WithBrowser(fake),
		WithLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cfg := c.Config()
	if cfg.BaseURL != "https://example.com/app" {
		t.Errorf("BaseURL = %s, want https://example.com/app", cfg.BaseURL)
	}
	if cfg.Concurrency.Desired != 4 {
		t.Errorf("Desired = %d, want 4", cfg.Concurrency.Desired)
	}
	if got := cfg.Entrypoints(); len(got) != 1 || got[0] != "https://example.com/docs" {
		t.Errorf("Entrypoints() = %v, want [https://example.com/docs]", got)
	}
	if !c.limiter.Enabled() {
		t.Error("limiter disabled, want enabled")
	}
	if c.login != nil {
		t.Error("login configured without login_required")
	}
	if c.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
}

func TestNew_CredentialsEnableLogin(t *testing.T) {
	cfg := testConfig(t)
	c, _ := newTestCrawler(t, cfg, &browsertest.Browser{}, WithCredentials("user", "secret"))
	if c.login == nil {
		t.Fatal("login = nil, want form login")
	}
	if got := c.Config().LoginURL(); got != "https://example.com/login" {
		t.Errorf("LoginURL() = %s, want https://example.com/login", got)
	}
}

// =============================================================================
// Start() Tests
// =============================================================================

func TestStart_CrawlsBaseAndEntrypoints(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdditionalEntrypoints = []string{"https://example.com/a/"}

	fake := &browsertest.Browser{}
	c, _ := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{"https://example.com/", "https://example.com/a"}
	if got := navigated(fake); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("navigated = %v, want %v", got, want)
	}
	if fake.Opened() != 2 {
		t.Fatalf("Opened() = %d, want 2", fake.Opened())
	}
	for i, p := range fake.Pages {
		if p.Closes() != 1 {
			t.Errorf("page %d Closes() = %d, want 1", i, p.Closes())
		}
		if p.Routes != 1 {
			t.Errorf("page %d Routes = %d, want 1", i, p.Routes)
		}
		if p.DownloadHooks() != 1 {
			t.Errorf("page %d DownloadHooks() = %d, want 1", i, p.DownloadHooks())
		}
	}

	for _, rel := range []string{"pages/index.html", "pages/a/index.html"} {
		if _, err := os.Stat(filepath.Join(cfg.OutDir, rel)); err != nil {
			t.Errorf("%s not written: %v", rel, err)
		}
	}

	if result.Stats.PagesVisited != 2 {
		t.Errorf("PagesVisited = %d, want 2", result.Stats.PagesVisited)
	}
	if result.Stats.PagesSaved != 2 {
		t.Errorf("PagesSaved = %d, want 2", result.Stats.PagesSaved)
	}
	if len(result.Pages) != 2 {
		t.Errorf("len(Pages) = %d, want 2", len(result.Pages))
	}
	if fake.Closed {
		t.Error("injected browser was closed")
	}
}

func TestStart_FollowsFilteredLinks(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: pageWithLinks(linksScript(t),
			"https://example.com/b",
			"https://example.com/b#top",
			"https://other.example.org/x",
			"https://example.com/api/users",
			"https://example.com/logo.png",
		),
	}
	c, _ := newTestCrawler(t, cfg, fake)

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{"https://example.com/", "https://example.com/b"}
	if got := navigated(fake); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("navigated = %v, want %v", got, want)
	}
}

func TestEnqueueLinks_AppliesMatchers(t *testing.T) {
	cfg := testConfig(t)
	cfg.ExcludeLinks = []MatcherConfig{{Kind: "regex", Pattern: "/private"}}
	c, _ := newTestCrawler(t, cfg, &browsertest.Browser{})

	page := pageWithLinks(linksScript(t),
		"https://example.com/public",
		"https://example.com/private/area",
		"https://cdn.example.com/lib",
		"https://example.com/api/v1",
	)()

	got := c.enqueueLinks(context.Background(), page, &queue.Request{URL: "https://example.com/"}, logger.Nop())
	if got != 1 {
		t.Errorf("enqueueLinks() = %d, want 1", got)
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"https://example.com/public", true},
		{"https://example.com/private/area", false},
		{"https://cdn.example.com/lib", false},
		{"https://example.com/api/v1", false},
	}
	for _, tt := range tests {
		if c.Frontier().Contains(tt.key) != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.key, !tt.want, tt.want)
		}
	}
}

func TestStart_StatusPolicy(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		ignored   []int
		wantSaved int64
		wantType  string
	}{
		{name: "ok", status: 200, wantSaved: 1},
		{name: "redirect status", status: 304, wantSaved: 1},
		{name: "not found", status: 404, wantType: "client_error"},
		{name: "ignored not found", status: 404, ignored: []int{404}, wantSaved: 1},
		{name: "server error", status: 503, wantType: "server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.IgnoreHTTPErrorStatusCodes = tt.ignored
			fake := &browsertest.Browser{
				NewPageFunc: func() *browsertest.Page {
					p := browsertest.NewPage()
					p.Status = tt.status
					return p
				},
			}
			c, _ := newTestCrawler(t, cfg, fake)

			result, err := c.Start(context.Background())
			if err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if result.Stats.PagesSaved != tt.wantSaved {
				t.Errorf("PagesSaved = %d, want %d", result.Stats.PagesSaved, tt.wantSaved)
			}
			if tt.wantType == "" {
				if len(result.Errors) != 0 {
					t.Errorf("Errors = %v, want none", result.Errors)
				}
				return
			}
			if len(result.Errors) != 1 {
				t.Fatalf("len(Errors) = %d, want 1", len(result.Errors))
			}
			if result.Errors[0].Type != tt.wantType {
				t.Errorf("Errors[0].Type = %s, want %s", result.Errors[0].Type, tt.wantType)
			}
			if fake.Pages[0].Closes() != 1 {
				t.Errorf("Closes() = %d, want 1", fake.Pages[0].Closes())
			}
		})
	}
}

func TestStart_NavigationDownload(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: func() *browsertest.Page {
			p := browsertest.NewPage()
			p.NavigateErr = fmt.Errorf("navigation failed: net::ERR_ABORTED Download is starting")
			return p
		},
	}
	c, logs := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}
	if result.Stats.Downloads != 1 {
		t.Errorf("Downloads = %d, want 1", result.Stats.Downloads)
	}
	if len(result.Pages) != 1 || !result.Pages[0].Download {
		t.Errorf("Pages = %+v, want one download record", result.Pages)
	}
	if !strings.Contains(logs.String(), "[goto-download]") {
		t.Errorf("log missing [goto-download]: %s", logs.String())
	}
	if fake.Pages[0].Closes() != 1 {
		t.Errorf("Closes() = %d, want 1", fake.Pages[0].Closes())
	}
}

func TestStart_AbortAfterDownloadEvent(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: func() *browsertest.Page {
			p := browsertest.NewPage()
			p.BeforeNavigate = func(p *browsertest.Page, u string) {
				p.TriggerDownload(u)
			}
			p.NavigateErr = fmt.Errorf("navigation failed: net::ERR_ABORTED")
			return p
		},
	}
	c, _ := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}
	if len(result.Pages) != 1 || !result.Pages[0].Download {
		t.Errorf("Pages = %+v, want one download record", result.Pages)
	}
}

func TestStart_AbortWithoutDownloadIsError(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: func() *browsertest.Page {
			p := browsertest.NewPage()
			p.NavigateErr = fmt.Errorf("navigation failed: net::ERR_ABORTED")
			return p
		},
	}
	c, _ := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Errors = %d, want 1", len(result.Errors))
	}
}

func TestStart_NavigationFailureRecorded(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: func() *browsertest.Page {
			p := browsertest.NewPage()
			p.NavigateErr = fmt.Errorf("net::ERR_CONNECTION_REFUSED")
			return p
		},
	}
	c, _ := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(result.Errors))
	}
	if result.Errors[0].Type != "navigation" {
		t.Errorf("Type = %s, want navigation", result.Errors[0].Type)
	}
	if result.Errors[0].Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Errors[0].Attempts)
	}
	if result.Stats.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", result.Stats.ErrorCount)
	}
}

func TestStart_NewPageErrorRecorded(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{NewPageErr: fmt.Errorf("target closed")}
	c, _ := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Type != "browser" {
		t.Errorf("Errors = %+v, want one browser error", result.Errors)
	}
}

func TestStart_DiscoveryErrorsLogged(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: func() *browsertest.Page {
			p := browsertest.NewPage()
			p.HTMLContent = "<html></html>"
			p.EvalFunc = func(js string) (any, error) {
				return nil, fmt.Errorf("execution context was destroyed")
			}
			return p
		},
	}
	c, logs := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !strings.Contains(logs.String(), "[discover-error]") {
		t.Errorf("log missing [discover-error]: %s", logs.String())
	}
	if result.Stats.PagesSaved != 1 {
		t.Errorf("PagesSaved = %d, want 1", result.Stats.PagesSaved)
	}
}

func TestHandlePage_DiscoversWithoutMarkup(t *testing.T) {
	cfg := testConfig(t)
	// Link enumeration drops /dom-only, so only the DOM discovery channel
	// can enqueue it.
	cfg.ExcludeLinks = []MatcherConfig{{Kind: "regex", Pattern: "/dom-only"}}
	c, logs := newTestCrawler(t, cfg, &browsertest.Browser{})

	page := pageWithLinks(linksScript(t), "https://example.com/dom-only")()
	page.HTMLErr = fmt.Errorf("page crashed")

	record := c.handlePage(context.Background(), page, &queue.Request{URL: "https://example.com/"}, c.logger)

	if !c.Frontier().Contains("https://example.com/dom-only") {
		t.Error("DOM channel skipped when the markup capture failed")
	}
	if record.Links != 1 {
		t.Errorf("Links = %d, want 1", record.Links)
	}
	if !strings.Contains(logs.String(), "[save-failed]") {
		t.Errorf("log missing [save-failed]: %s", logs.String())
	}
}

func TestStart_DiscoveryErrorsTyped(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: func() *browsertest.Page {
			p := browsertest.NewPage()
			p.EvalFunc = func(js string) (any, error) {
				return nil, fmt.Errorf("execution context was destroyed")
			}
			return p
		},
	}
	c, logs := newTestCrawler(t, cfg, fake)

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// Discovery and link enumeration each fail once.
	if got := c.metrics.Snapshot().ErrorCounts["discovery"]; got != 2 {
		t.Errorf("ErrorCounts[discovery] = %d, want 2", got)
	}
	if !strings.Contains(logs.String(), "discovery error during discover") {
		t.Errorf("log missing typed discovery error: %s", logs.String())
	}
}

func TestStart_RouteAttachErrorLogged(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: func() *browsertest.Page {
			p := browsertest.NewPage()
			p.RouteErr = fmt.Errorf("route unsupported")
			return p
		},
	}
	c, logs := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !strings.Contains(logs.String(), "[route-mirror-attach-error]") {
		t.Errorf("log missing [route-mirror-attach-error]: %s", logs.String())
	}
	if result.Stats.PagesSaved != 1 {
		t.Errorf("PagesSaved = %d, want 1", result.Stats.PagesSaved)
	}
	if fake.Pages[0].DownloadHooks() != 1 {
		t.Errorf("DownloadHooks() = %d, want 1", fake.Pages[0].DownloadHooks())
	}
}

func TestStart_SaveFailure(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: func() *browsertest.Page {
			p := browsertest.NewPage()
			p.HTMLErr = fmt.Errorf("page crashed")
			return p
		},
	}
	c, logs := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if result.Stats.SaveFailures != 1 {
		t.Errorf("SaveFailures = %d, want 1", result.Stats.SaveFailures)
	}
	if !strings.Contains(logs.String(), "[save-failed]") {
		t.Errorf("log missing [save-failed]: %s", logs.String())
	}
}

func TestStart_WritesReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReportFile = filepath.Join(t.TempDir(), "report", "crawl.json")
	c, _ := newTestCrawler(t, cfg, &browsertest.Browser{})

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	data, err := os.ReadFile(cfg.ReportFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"target": "https://example.com/"`) {
		t.Errorf("report missing target: %s", data)
	}
}

func TestStart_StreamsEvents(t *testing.T) {
	cfg := testConfig(t)
	cfg.EventsFile = filepath.Join(t.TempDir(), "events.jsonl")
	c, _ := newTestCrawler(t, cfg, &browsertest.Browser{})

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	data, err := os.ReadFile(cfg.EventsFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("events = %d lines, want 1: %s", len(lines), data)
	}
	if !strings.Contains(lines[0], `"type":"page"`) || !strings.Contains(lines[0], "https://example.com/") {
		t.Errorf("event = %s", lines[0])
	}
}

func TestStart_EventsFileUnwritable(t *testing.T) {
	cfg := testConfig(t)
	cfg.EventsFile = filepath.Join(t.TempDir(), "missing", "events.jsonl")
	fake := &browsertest.Browser{}
	c, _ := newTestCrawler(t, cfg, fake)

	_, err := c.Start(context.Background())
	if !errors.IsConfigError(err) {
		t.Fatalf("Start() error = %v, want config error", err)
	}
	if fake.Opened() != 0 {
		t.Errorf("Opened() = %d, want 0", fake.Opened())
	}
}

func TestStart_OnlyOnce(t *testing.T) {
	cfg := testConfig(t)
	c, _ := newTestCrawler(t, cfg, &browsertest.Browser{})

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := c.Start(context.Background()); err == nil {
		t.Error("second Start() error = nil, want error")
	}
}

func TestStart_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	c, _ := newTestCrawler(t, cfg, &browsertest.Browser{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Start(ctx)
	if errors.GetErrorType(err) != errors.Cancelled {
		t.Errorf("GetErrorType(%v) = %v, want cancelled", err, errors.GetErrorType(err))
	}
}

func TestStart_LaunchesOwnBrowser(t *testing.T) {
	cfg := testConfig(t)
	fake := &browsertest.Browser{}
	c, err := New(WithConfig(cfg), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var headless bool
	c.launch = func(bc browser.Config) (browser.Browser, error) {
		headless = bc.Headless
		return fake, nil
	}

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !headless {
		t.Error("Headless = false, want true")
	}
	if !fake.Closed {
		t.Error("launched browser was not closed")
	}
}

// =============================================================================
// Login Tests
// =============================================================================

func loginConfig(t *testing.T) *Config {
	cfg := testConfig(t)
	cfg.LoginRequired = true
	cfg.Login = "user"
	cfg.Password = "secret"
	return cfg
}

func TestStart_LoginFirst(t *testing.T) {
	cfg := loginConfig(t)
	cfg.AdditionalEntrypoints = []string{"/settings"}

	fake := &browsertest.Browser{}
	fake.NewPageFunc = func() *browsertest.Page {
		p := browsertest.NewPage()
		p.SetElement(cfg.LoginInputSelector, &browsertest.Element{})
		p.SetElement(cfg.PasswordInputSelector, &browsertest.Element{})
		p.WaitURLFunc = func(pred func(string) bool, timeout time.Duration) error {
			p.SetURL("https://example.com/dashboard")
			return nil
		}
		return p
	}
	c, _ := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := fake.Pages[0].Navigated; len(got) != 1 || got[0] != "https://example.com/login" {
		t.Errorf("first navigation = %v, want [https://example.com/login]", got)
	}
	typed := fake.Pages[0].Elements[cfg.PasswordInputSelector].Typed
	if len(typed) != 1 || typed[0] != "secret" {
		t.Errorf("password Typed = %v, want [secret]", typed)
	}
	if fake.Opened() != 3 {
		t.Errorf("Opened() = %d, want 3", fake.Opened())
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}
}

func TestStart_LoginFailureAborts(t *testing.T) {
	cfg := loginConfig(t)
	fake := &browsertest.Browser{}
	c, _ := newTestCrawler(t, cfg, fake)

	result, err := c.Start(context.Background())
	if err == nil {
		t.Fatal("Start() error = nil, want login error")
	}
	if errors.GetErrorType(err) != errors.Login {
		t.Errorf("GetErrorType() = %v, want login", errors.GetErrorType(err))
	}
	if fake.Opened() != 1 {
		t.Errorf("Opened() = %d, want 1", fake.Opened())
	}
	if len(result.Errors) != 1 {
		t.Errorf("len(Errors) = %d, want 1", len(result.Errors))
	}
	if fake.Pages[0].Closes() != 1 {
		t.Errorf("Closes() = %d, want 1", fake.Pages[0].Closes())
	}
}

func TestStart_AlreadyAuthenticated(t *testing.T) {
	cfg := loginConfig(t)
	fake := &browsertest.Browser{
		NewPageFunc: func() *browsertest.Page {
			p := browsertest.NewPage()
			p.NavigateFunc = func(p *browsertest.Page, u string) {
				if strings.HasSuffix(u, "/login") {
					p.SetURL("https://example.com/home")
				}
			}
			return p
		},
	}
	c, _ := newTestCrawler(t, cfg, fake)

	if _, err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if fake.Opened() != 2 {
		t.Errorf("Opened() = %d, want 2", fake.Opened())
	}
}

// =============================================================================
// Pool Tests
// =============================================================================

func TestPool_ScalesWithinBounds(t *testing.T) {
	tests := []struct {
		name     string
		min      int
		target   int
		requests int
	}{
		{name: "single worker", min: 1, target: 1, requests: 5},
		{name: "grows to target", min: 1, target: 4, requests: 20},
		{name: "starts at min", min: 3, target: 3, requests: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := queue.NewFrontier(tt.requests)
			for i := 0; i < tt.requests; i++ {
				u := fmt.Sprintf("https://example.com/%d", i)
				f.Push(&queue.Request{URL: u, UniqueKey: u})
			}

			var handled atomic.Int64
			p := newPool(tt.min, tt.target, f, func(ctx context.Context, req *queue.Request) {
				time.Sleep(5 * time.Millisecond)
				handled.Add(1)
			}, metrics.New())
			p.interval = time.Millisecond

			if err := p.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := handled.Load(); got != int64(tt.requests) {
				t.Errorf("handled = %d, want %d", got, tt.requests)
			}
			if p.Peak() > tt.target {
				t.Errorf("Peak() = %d, want <= %d", p.Peak(), tt.target)
			}
			if p.Spawned() < tt.min {
				t.Errorf("Spawned() = %d, want >= %d", p.Spawned(), tt.min)
			}
		})
	}
}

func TestPool_ClampsBounds(t *testing.T) {
	p := newPool(0, 0, queue.NewFrontier(0), func(context.Context, *queue.Request) {}, nil)
	if p.min != 1 || p.target != 1 {
		t.Errorf("min, target = %d, %d, want 1, 1", p.min, p.target)
	}
}

func TestPool_StopsOnCancel(t *testing.T) {
	f := queue.NewFrontier(0)
	f.Push(&queue.Request{URL: "https://example.com/", UniqueKey: "https://example.com/"})

	ctx, cancel := context.WithCancel(context.Background())
	p := newPool(1, 1, f, func(ctx context.Context, req *queue.Request) {
		cancel()
		// Leave work behind; the worker must still stop.
		f.Push(&queue.Request{URL: "https://example.com/next", UniqueKey: "next"})
	}, metrics.New())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
