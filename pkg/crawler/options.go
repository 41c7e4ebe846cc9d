package crawler

import (
	"github.com/PentesterFlow/spa-crawler/internal/browser"
	"github.com/PentesterFlow/spa-crawler/internal/logger"
	"github.com/PentesterFlow/spa-crawler/internal/metrics"
)

// Option is a functional option for configuring the Crawler.
type Option func(*Crawler) error

// WithConfig sets the entire configuration.
func WithConfig(config *Config) Option {
	return func(c *Crawler) error {
		c.config = config
		return nil
	}
}

// WithBaseURL sets the site to crawl.
func WithBaseURL(url string) Option {
	return func(c *Crawler) error {
		c.config.BaseURL = url
		return nil
	}
}

// WithCredentials enables form login with the given identity.
func WithCredentials(login, password string) Option {
	return func(c *Crawler) error {
		c.config.LoginRequired = true
		c.config.Login = login
		c.config.Password = password
		return nil
	}
}

// WithoutLogin disables the login flow.
func WithoutLogin() Option {
	return func(c *Crawler) error {
		c.config.LoginRequired = false
		return nil
	}
}

// WithConcurrency sets the worker pool bounds.
func WithConcurrency(min, max, desired int) Option {
	return func(c *Crawler) error {
		c.config.Concurrency = ConcurrencyConfig{Min: min, Max: max, Desired: desired}
		return nil
	}
}

// WithOutDir sets the mirror output directory.
func WithOutDir(dir string) Option {
	return func(c *Crawler) error {
		c.config.OutDir = dir
		return nil
	}
}

// WithEntrypoints adds crawl entrypoints besides the base URL.
func WithEntrypoints(urls ...string) Option {
	return func(c *Crawler) error {
		c.config.AdditionalEntrypoints = append(c.config.AdditionalEntrypoints, urls...)
		return nil
	}
}

// WithRateLimit paces navigations to rps per second. 0 disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Crawler) error {
		c.config.RateLimit = rps
		return nil
	}
}

// WithReportFile writes a JSON crawl report to path when the crawl ends.
func WithReportFile(path string) Option {
	return func(c *Crawler) error {
		c.config.ReportFile = path
		return nil
	}
}

// WithVerbose enables/disables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(c *Crawler) error {
		c.config.Verbose = verbose
		return nil
	}
}

// WithQuiet suppresses everything but critical messages.
func WithQuiet(quiet bool) Option {
	return func(c *Crawler) error {
		c.config.Quiet = quiet
		return nil
	}
}

// WithBrowser injects the browser instead of launching Chrome. The crawler
// does not close an injected browser.
func WithBrowser(b browser.Browser) Option {
	return func(c *Crawler) error {
		c.browser = b
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Crawler) error {
		c.logger = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) error {
		c.metrics = m
		return nil
	}
}
