// Package browser provides headless Chrome integration via Rod.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	crawlhttp "github.com/PentesterFlow/spa-crawler/internal/http"
)

// Config defines browser configuration.
type Config struct {
	Headless          bool          `json:"headless"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors"`
	ViewportWidth     int           `json:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height"`
	DownloadDir       string        `json:"download_dir"`
	Scroll            ScrollConfig  `json:"-"`
	FetchTimeout      time.Duration `json:"fetch_timeout"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		IgnoreHTTPSErrors: true,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		DownloadDir:       filepath.Join(os.TempDir(), "spa-crawler-downloads"),
		Scroll:            DefaultScrollConfig(),
		FetchTimeout:      60 * time.Second,
	}
}

// RodBrowser wraps a Rod browser instance.
type RodBrowser struct {
	browser *rod.Browser
	config  Config
	fetch   *crawlhttp.FetchClient
}

// Launch starts a local Chrome and connects to it.
func Launch(config Config) (*RodBrowser, error) {
	l := launcher.New()

	l = l.Headless(config.Headless)

	if config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	fetchCfg := crawlhttp.DefaultConfig()
	fetchCfg.SkipTLSVerify = config.IgnoreHTTPSErrors
	if config.FetchTimeout > 0 {
		fetchCfg.Timeout = config.FetchTimeout
	}

	return &RodBrowser{
		browser: browser,
		config:  config,
		fetch:   crawlhttp.NewFetchClient(fetchCfg),
	}, nil
}

// NewPage opens a blank page ready for navigation.
func (b *RodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	// Viewport and downloads are not critical
	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.config.ViewportWidth,
		Height: b.config.ViewportHeight,
	})
	if b.config.DownloadDir != "" {
		_ = proto.PageSetDownloadBehavior{
			Behavior:     proto.PageSetDownloadBehaviorBehaviorAllow,
			DownloadPath: b.config.DownloadDir,
		}.Call(page)
	}

	return newRodPage(page, b.fetch, b.config.Scroll), nil
}

// Close closes the browser.
func (b *RodBrowser) Close() error {
	b.fetch.Close()
	return b.browser.Close()
}
