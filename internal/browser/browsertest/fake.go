// Package browsertest provides in-memory fakes of the browser interfaces.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ysmood/gson"

	"github.com/PentesterFlow/spa-crawler/internal/browser"
)

// ErrNoElement is returned by Locate for selectors without a fake element.
var ErrNoElement = errors.New("element not found")

// Browser hands out fake pages.
type Browser struct {
	mu sync.Mutex

	// NewPageFunc builds each page. Defaults to NewPage().
	NewPageFunc func() *Page
	NewPageErr  error

	Pages  []*Page
	Closed bool
}

// NewPage implements browser.Browser.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	var p *Page
	if b.NewPageFunc != nil {
		p = b.NewPageFunc()
	} else {
		p = NewPage()
	}
	b.Pages = append(b.Pages, p)
	return p, nil
}

// Close implements browser.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	b.Closed = true
	b.mu.Unlock()
	return nil
}

// Opened returns how many pages were created.
func (b *Browser) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Pages)
}

// Page is a scriptable browser.Page.
type Page struct {
	mu sync.Mutex

	CurrentURL  string
	Status      int
	HTMLContent string
	HTMLErr     error
	NavigateErr error
	RouteErr    error
	ScrollErr   error

	// EvalFunc answers Eval. The returned value is wrapped in gson.
	EvalFunc func(js string) (any, error)
	// NavigateFunc, when set, runs after a successful navigation.
	NavigateFunc func(p *Page, url string)
	// BeforeNavigate runs on every navigation before NavigateErr is returned.
	BeforeNavigate func(p *Page, url string)
	// WaitURLFunc overrides WaitURL. By default pred is checked once.
	WaitURLFunc func(pred func(string) bool, timeout time.Duration) error

	Elements map[string]*Element

	Navigated    []string
	Pressed      []browser.Key
	ClicksAt     int
	Scrolls      int
	WaitURLCalls []time.Duration
	Evals        []string
	Routes       int
	CloseCount   int

	handler     func(browser.Exchange)
	downloadFns []func(string)
}

// NewPage returns an empty fake page at about:blank.
func NewPage() *Page {
	return &Page{
		CurrentURL: "about:blank",
		Status:     200,
		Elements:   make(map[string]*Element),
	}
}

// SetElement registers el for selector.
func (p *Page) SetElement(selector string, el *Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Elements == nil {
		p.Elements = make(map[string]*Element)
	}
	p.Elements[selector] = el
}

// SetURL moves the page without a navigation.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	p.CurrentURL = u
	p.mu.Unlock()
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL
}

func (p *Page) Navigate(ctx context.Context, u string) error {
	p.mu.Lock()
	p.Navigated = append(p.Navigated, u)
	err := p.NavigateErr
	fn := p.NavigateFunc
	before := p.BeforeNavigate
	if err == nil {
		p.CurrentURL = u
	}
	p.mu.Unlock()

	if before != nil {
		before(p, u)
	}
	if err != nil {
		return err
	}
	if fn != nil {
		fn(p, u)
	}
	return nil
}

func (p *Page) StatusCode(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Status
}

func (p *Page) WaitDOMContentLoaded(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (p *Page) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (p *Page) WaitURL(ctx context.Context, pred func(string) bool, timeout time.Duration) error {
	p.mu.Lock()
	p.WaitURLCalls = append(p.WaitURLCalls, timeout)
	fn := p.WaitURLFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(pred, timeout)
	}
	if pred(p.URL()) {
		return nil
	}
	return fmt.Errorf("wait for url: %w", context.DeadlineExceeded)
}

func (p *Page) Eval(ctx context.Context, js string) (gson.JSON, error) {
	p.mu.Lock()
	p.Evals = append(p.Evals, js)
	fn := p.EvalFunc
	p.mu.Unlock()

	if fn == nil {
		return gson.New(nil), nil
	}
	v, err := fn(js)
	if err != nil {
		return gson.New(nil), err
	}
	return gson.New(v), nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTMLContent, p.HTMLErr
}

func (p *Page) Locate(ctx context.Context, selector string) (browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.Elements[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return el, nil
}

func (p *Page) Press(ctx context.Context, key browser.Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Pressed = append(p.Pressed, key)
	return nil
}

func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ClicksAt++
	return nil
}

func (p *Page) InfiniteScroll(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Scrolls++
	return p.ScrollErr
}

func (p *Page) Route(handler func(browser.Exchange)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RouteErr != nil {
		return p.RouteErr
	}
	p.Routes++
	p.handler = handler
	return nil
}

// Serve passes x to the installed route handler, if any.
func (p *Page) Serve(x browser.Exchange) bool {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		return false
	}
	h(x)
	return true
}

func (p *Page) OnDownload(fn func(url string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloadFns = append(p.downloadFns, fn)
}

// DownloadHooks returns how many download callbacks were registered.
func (p *Page) DownloadHooks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.downloadFns)
}

// TriggerDownload invokes the registered download callbacks.
func (p *Page) TriggerDownload(u string) {
	p.mu.Lock()
	fns := append([]func(string){}, p.downloadFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCount++
	return nil
}

// Closes returns how many times Close was called.
func (p *Page) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CloseCount
}

// Element records interactions.
type Element struct {
	mu sync.Mutex

	ClickErr error
	OnClick  func()

	Clicks  int
	Typed   []string
	Pressed []browser.Key
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	e.Clicks++
	err := e.ClickErr
	fn := e.OnClick
	e.mu.Unlock()

	if err == nil && fn != nil {
		fn()
	}
	return err
}

func (e *Element) Type(ctx context.Context, text string, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Typed = append(e.Typed, text)
	return nil
}

func (e *Element) Press(ctx context.Context, key browser.Key) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Pressed = append(e.Pressed, key)
	return nil
}

// ClickCount returns the number of clicks.
func (e *Element) ClickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Clicks
}

// Exchange is a scriptable intercepted request.
type Exchange struct {
	mu sync.Mutex

	RawURL   string
	Type     string
	Response *browser.Response
	FetchErr error

	Fetches   int
	Continued int
	Fulfilled []*browser.Response
}

// NewExchange returns an exchange for rawURL of the given resource type.
func NewExchange(rawURL, resourceType string, resp *browser.Response) *Exchange {
	return &Exchange{RawURL: rawURL, Type: resourceType, Response: resp}
}

func (x *Exchange) URL() *url.URL {
	u, err := url.Parse(x.RawURL)
	if err != nil {
		return &url.URL{}
	}
	return u
}

func (x *Exchange) ResourceType() string {
	return x.Type
}

func (x *Exchange) Continue() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.Continued++
	return nil
}

func (x *Exchange) Fetch(timeout time.Duration) (*browser.Response, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.Fetches++
	if x.FetchErr != nil {
		return nil, x.FetchErr
	}
	if x.Response == nil {
		return &browser.Response{Status: 200}, nil
	}
	return x.Response, nil
}

func (x *Exchange) Fulfill(resp *browser.Response) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.Fulfilled = append(x.Fulfilled, resp)
	return nil
}

var (
	_ browser.Browser  = (*Browser)(nil)
	_ browser.Page     = (*Page)(nil)
	_ browser.Element  = (*Element)(nil)
	_ browser.Exchange = (*Exchange)(nil)
)
