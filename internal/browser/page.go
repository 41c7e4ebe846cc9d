package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	crawlhttp "github.com/PentesterFlow/spa-crawler/internal/http"
)

const (
	visibleSuffix   = ":visible"
	pollInterval    = 100 * time.Millisecond
	idleWindow      = 500 * time.Millisecond
	downloadGrace   = time.Second
	statusScript    = `() => { const e = performance.getEntriesByType('navigation')[0]; return e && e.responseStatus ? e.responseStatus : 0; }`
	readyStateCheck = `() => document.readyState !== 'loading'`
)

var rodKeys = map[Key]input.Key{
	KeyEnter:  input.Enter,
	KeyEscape: input.Escape,
}

// rodPage implements Page over a rod page.
type rodPage struct {
	page   *rod.Page
	fetch  *crawlhttp.FetchClient
	scroll ScrollConfig

	mu         sync.Mutex
	router     *rod.HijackRouter
	onDownload []func(string)

	downloaded   chan struct{}
	downloadOnce sync.Once
	closeOnce    sync.Once
	closeErr     error

	// cancel stops the event listeners. rod ties page events to the
	// browser context, so closing the page alone does not end them.
	cancel    context.CancelFunc
	listeners sync.WaitGroup
}

func newRodPage(page *rod.Page, fetch *crawlhttp.FetchClient, scroll ScrollConfig) *rodPage {
	ctx, cancel := context.WithCancel(context.Background())
	p := &rodPage{
		page:       page,
		fetch:      fetch,
		scroll:     scroll,
		downloaded: make(chan struct{}),
		cancel:     cancel,
	}

	p.listen(page.Context(ctx).EachEvent(func(e *proto.PageDownloadWillBegin) {
		p.downloadStarted(e.URL)
	}))

	return p
}

// listen runs wait in the background until the page is closed.
func (p *rodPage) listen(wait func()) {
	p.listeners.Add(1)
	go func() {
		defer p.listeners.Done()
		wait()
	}()
}

func (p *rodPage) downloadStarted(u string) {
	p.downloadOnce.Do(func() { close(p.downloaded) })

	p.mu.Lock()
	hooks := append([]func(string){}, p.onDownload...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(u)
	}
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	err := p.page.Context(ctx).Navigate(url)
	if err == nil {
		return nil
	}

	var navErr *rod.ErrNavigation
	if errors.As(err, &navErr) && strings.Contains(navErr.Reason, "net::ERR_ABORTED") {
		select {
		case <-p.downloaded:
			return fmt.Errorf("%w: %s", ErrDownloadStarted, url)
		case <-time.After(downloadGrace):
		case <-ctx.Done():
		}
	}
	return err
}

func (p *rodPage) StatusCode(ctx context.Context) int {
	res, err := p.Eval(ctx, statusScript)
	if err != nil {
		return 0
	}
	return res.Int()
}

func (p *rodPage) WaitDOMContentLoaded(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.page.Context(tctx).Wait(rod.Eval(readyStateCheck))
}

func (p *rodPage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := p.page.Context(tctx).WaitRequestIdle(idleWindow, nil, nil, nil)
	wait()
	return tctx.Err()
}

func (p *rodPage) WaitURL(ctx context.Context, pred func(string) bool, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if pred(p.URL()) {
			return nil
		}
		select {
		case <-tctx.Done():
			return fmt.Errorf("wait for url: %w", tctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *rodPage) Eval(ctx context.Context, js string) (gson.JSON, error) {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Locate(ctx context.Context, selector string) (Element, error) {
	page := p.page.Context(ctx)

	if !strings.HasSuffix(selector, visibleSuffix) {
		el, err := page.Element(selector)
		if err != nil {
			return nil, err
		}
		return &rodElement{el: el, page: p.page}, nil
	}

	css := strings.TrimSuffix(selector, visibleSuffix)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		els, err := page.Elements(css)
		if err == nil {
			for _, el := range els {
				if visible, err := el.Visible(); err == nil && visible {
					return &rodElement{el: el, page: p.page}, nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no visible element for %q: %w", css, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *rodPage) Press(ctx context.Context, key Key) error {
	k, ok := rodKeys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return p.page.Context(ctx).Keyboard.Press(k)
}

func (p *rodPage) ClickAt(ctx context.Context, x, y float64) error {
	page := p.page.Context(ctx)
	if err := page.Mouse.MoveTo(proto.Point{X: x, Y: y}); err != nil {
		return err
	}
	return page.Mouse.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) InfiniteScroll(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return ScrollUntilStable(tctx, p, p.scroll)
}

func (p *rodPage) Route(handler func(Exchange)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.router != nil {
		return errors.New("route already installed")
	}

	router := p.page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		handler(&rodExchange{hijack: h, page: p.page, fetch: p.fetch})
	})
	if err != nil {
		return fmt.Errorf("failed to add route: %w", err)
	}

	go router.Run()
	p.router = router
	return nil
}

func (p *rodPage) OnDownload(fn func(url string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDownload = append(p.onDownload, fn)
}

func (p *rodPage) Close() error {
	p.closeOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.mu.Lock()
		router := p.router
		p.mu.Unlock()
		if router != nil {
			_ = router.Stop()
		}
		if p.page != nil {
			p.closeErr = p.page.Close()
		}
	})
	return p.closeErr
}

// rodElement implements Element.
type rodElement struct {
	el   *rod.Element
	page *rod.Page
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Type(ctx context.Context, text string, delay time.Duration) error {
	if err := e.el.Context(ctx).Focus(); err != nil {
		return err
	}

	page := e.page.Context(ctx)
	for _, r := range text {
		if err := page.InsertText(string(r)); err != nil {
			return err
		}
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}

func (e *rodElement) Press(ctx context.Context, key Key) error {
	k, ok := rodKeys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return e.el.Context(ctx).Type(k)
}

var (
	_ Browser  = (*RodBrowser)(nil)
	_ Page     = (*rodPage)(nil)
	_ Element  = (*rodElement)(nil)
	_ Exchange = (*rodExchange)(nil)
)
