package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ysmood/gson"

	crawlerrors "github.com/PentesterFlow/spa-crawler/internal/errors"
)

// Evaluator runs a JS function expression in a page.
type Evaluator interface {
	Eval(ctx context.Context, js string) (gson.JSON, error)
}

// ScrollConfig bounds an infinite-scroll pass.
type ScrollConfig struct {
	MaxScrolls int
	Delay      time.Duration // wait after each scroll for lazy content
}

// DefaultScrollConfig returns the scroll defaults.
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{
		MaxScrolls: 25,
		Delay:      400 * time.Millisecond,
	}
}

// ScrollUntilStable scrolls to the bottom until the document height stops
// growing, MaxScrolls is reached, or ctx is done. It scrolls back to the top
// before returning.
func ScrollUntilStable(ctx context.Context, ev Evaluator, cfg ScrollConfig) error {
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = DefaultScrollConfig().MaxScrolls
	}

	lastHeight := -1
	var scrollErr error

	for scrollCount := 0; scrollCount < cfg.MaxScrolls; scrollCount++ {
		res, err := ev.Eval(ctx, `() => document.body ? document.body.scrollHeight : 0`)
		if err != nil {
			scrollErr = err
			break
		}
		currentHeight := res.Int()
		if currentHeight == lastHeight {
			break
		}
		lastHeight = currentHeight

		if _, err := ev.Eval(ctx, `() => window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`); err != nil {
			scrollErr = err
			break
		}

		select {
		case <-ctx.Done():
			scrollErr = ctx.Err()
		case <-time.After(cfg.Delay):
		}
		if scrollErr != nil {
			break
		}
	}

	// Scroll back to top
	_, _ = ev.Eval(context.WithoutCancel(ctx), `() => window.scrollTo(0, 0)`)

	if errors.Is(scrollErr, context.DeadlineExceeded) {
		return nil
	}
	return scrollErr
}

// DismissOverlays closes modals the way a user would and then force-hides
// full-viewport overlays in-page. Each step reports its own result.
func DismissOverlays(ctx context.Context, p Page) []crawlerrors.Result[struct{}] {
	return []crawlerrors.Result[struct{}]{
		crawlerrors.Attempt(func() error { return p.Press(ctx, KeyEscape) }),
		crawlerrors.Attempt(func() error { return p.ClickAt(ctx, 0, 0) }),
		crawlerrors.Attempt(func() error {
			js, err := Script(DismissOverlaysScript)
			if err != nil {
				return err
			}
			_, err = p.Eval(ctx, js)
			return err
		}),
	}
}

// SoftInteract triggers lazy content: scroll, dismiss overlays, scroll again.
// All steps are best-effort; the results are returned for inspection only.
func SoftInteract(ctx context.Context, p Page, scrollTimeout time.Duration) []crawlerrors.Result[struct{}] {
	results := make([]crawlerrors.Result[struct{}], 0, 5)
	results = append(results, crawlerrors.Attempt(func() error { return p.InfiniteScroll(ctx, scrollTimeout) }))
	results = append(results, DismissOverlays(ctx, p)...)
	results = append(results, crawlerrors.Attempt(func() error { return p.InfiniteScroll(ctx, scrollTimeout) }))
	return results
}

// IsDownloadError reports whether err means the navigation target was a
// file download rather than a document.
func IsDownloadError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDownloadStarted) {
		return true
	}
	return strings.Contains(err.Error(), "Download is starting")
}

// StableTimeouts bound WaitForStable. A zero Rerender skips the final pause.
type StableTimeouts struct {
	DOMContentLoaded time.Duration
	NetworkIdle      time.Duration
	Rerender         time.Duration
}

// WaitForStable waits for DOM-ready, then network idle, then sleeps for the
// rerender window. Timeouts are reported, not fatal.
func WaitForStable(ctx context.Context, p Page, t StableTimeouts) []crawlerrors.Result[struct{}] {
	results := []crawlerrors.Result[struct{}]{
		crawlerrors.Attempt(func() error { return p.WaitDOMContentLoaded(ctx, t.DOMContentLoaded) }),
		crawlerrors.Attempt(func() error { return p.WaitNetworkIdle(ctx, t.NetworkIdle) }),
	}
	if t.Rerender <= 0 {
		return results
	}

	timer := time.NewTimer(t.Rerender)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		results = append(results, crawlerrors.Fail[struct{}](ctx.Err()))
	case <-timer.C:
		results = append(results, crawlerrors.Ok(struct{}{}))
	}
	return results
}
