package crawler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/spa-crawler/internal/auth"
	"github.com/PentesterFlow/spa-crawler/internal/errors"
	"github.com/PentesterFlow/spa-crawler/internal/scope"
)

// Config holds all crawler configuration. Call Validate before use; the
// crawler treats a validated Config as immutable.
type Config struct {
	// Site root. Only this origin is crawled and mirrored.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Authentication
	LoginRequired         bool     `json:"login_required" yaml:"login_required"`
	LoginPath             string   `json:"login_path" yaml:"login_path"`
	Login                 string   `json:"login" yaml:"login"`
	Password              string   `json:"password" yaml:"password"`
	LoginInputSelector    string   `json:"login_input_selector" yaml:"login_input_selector"`
	PasswordInputSelector string   `json:"password_input_selector" yaml:"password_input_selector"`
	TypingDelay           Duration `json:"typing_delay" yaml:"typing_delay"`

	Headless    bool              `json:"headless" yaml:"headless"`
	Concurrency ConcurrencyConfig `json:"concurrency" yaml:"concurrency"`
	OutDir      string            `json:"out_dir" yaml:"out_dir"`
	Timeouts    TimeoutsConfig    `json:"timeouts" yaml:"timeouts"`

	// Link matchers applied to DOM link enumeration
	IncludeLinks []MatcherConfig `json:"include_links" yaml:"include_links"`
	ExcludeLinks []MatcherConfig `json:"exclude_links" yaml:"exclude_links"`

	AdditionalEntrypoints      []string `json:"additional_entrypoints" yaml:"additional_entrypoints"`
	IgnoreHTTPErrorStatusCodes []int    `json:"ignore_http_error_status_codes" yaml:"ignore_http_error_status_codes"`
	APIPathPrefixes            []string `json:"api_path_prefixes" yaml:"api_path_prefixes"`

	MaxRequestRetries int     `json:"max_request_retries" yaml:"max_request_retries"`
	RateLimit         float64 `json:"rate_limit" yaml:"rate_limit"` // navigations per second, 0 = off
	ReportFile        string  `json:"report_file" yaml:"report_file"`
	EventsFile        string  `json:"events_file" yaml:"events_file"`
	StrictAssetClaims bool    `json:"strict_asset_claims" yaml:"strict_asset_claims"`

	Verbose bool `json:"verbose" yaml:"verbose"`
	Quiet   bool `json:"quiet" yaml:"quiet"`

	// Derived by Validate
	base        *url.URL
	include     []*scope.Matcher
	exclude     []*scope.Matcher
	entrypoints []string
}

// ConcurrencyConfig bounds the worker pool.
type ConcurrencyConfig struct {
	Min     int `json:"min" yaml:"min"`
	Max     int `json:"max" yaml:"max"`
	Desired int `json:"desired" yaml:"desired"`
}

// TimeoutsConfig bounds the waits of a page visit.
type TimeoutsConfig struct {
	DOMContentLoaded Duration `json:"dom_content_loaded" yaml:"dom_content_loaded"`
	NetworkIdle      Duration `json:"network_idle" yaml:"network_idle"`
	Rerender         Duration `json:"rerender" yaml:"rerender"`
	LoginRedirect    Duration `json:"login_redirect" yaml:"login_redirect"`
	Scroll           Duration `json:"scroll" yaml:"scroll"`
}

// MatcherConfig is an include/exclude pattern as written in a config file.
type MatcherConfig struct {
	Kind    scope.MatcherKind `json:"kind" yaml:"kind"`
	Pattern string            `json:"pattern" yaml:"pattern"`
}

// Duration is a time.Duration that reads Go duration strings ("1.2s")
// from YAML and JSON. Bare numbers are milliseconds.
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration {
	return Duration{d}
}

func parseDuration(s string) (Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration{d}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ms int64
	if err := node.Decode(&ms); err == nil {
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err == nil {
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		LoginRequired:         true,
		LoginPath:             "/login",
		LoginInputSelector:    "input[name='login']:visible",
		PasswordInputSelector: "input[name='password']:visible",
		TypingDelay:           D(50 * time.Millisecond),
		Headless:              true,
		Concurrency: ConcurrencyConfig{
			Min:     1,
			Max:     100,
			Desired: 10,
		},
		OutDir: "out",
		Timeouts: TimeoutsConfig{
			DOMContentLoaded: D(30 * time.Second),
			NetworkIdle:      D(20 * time.Second),
			Rerender:         D(1200 * time.Millisecond),
			LoginRedirect:    D(60 * time.Second),
			Scroll:           D(10 * time.Second),
		},
		APIPathPrefixes:   []string{"/api"},
		MaxRequestRetries: 3,
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON) on top of
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		config = DefaultConfig()
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile writes the configuration to path. Files ending in .yaml or
// .yml are written as YAML, anything else as indented JSON.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate cleans the configuration in place and derives the base URL,
// matchers and entrypoints. It returns a Config error on the first
// violation.
func (c *Config) Validate() error {
	base, err := cleanBaseURL(c.BaseURL)
	if err != nil {
		return err
	}
	c.base = base
	c.BaseURL = base.String()

	if c.LoginRequired {
		c.LoginPath = strings.TrimSpace(c.LoginPath)
		if c.LoginPath == "" {
			return errors.NewConfigError("login_path is required when login_required is set")
		}
		if !strings.HasPrefix(c.LoginPath, "/") {
			c.LoginPath = "/" + c.LoginPath
		}
		if c.LoginPath == "/" {
			return errors.NewConfigError("login_path '/' is not supported")
		}
		if c.Login == "" || c.Password == "" {
			return errors.NewConfigError("login and password are required when login_required is set")
		}
		if strings.TrimSpace(c.LoginInputSelector) == "" || strings.TrimSpace(c.PasswordInputSelector) == "" {
			return errors.NewConfigError("login and password input selectors are required")
		}
	}

	if err := c.cleanConcurrency(); err != nil {
		return err
	}

	prefixes, err := cleanAPIPrefixes(c.APIPathPrefixes)
	if err != nil {
		return err
	}
	c.APIPathPrefixes = prefixes

	for _, code := range c.IgnoreHTTPErrorStatusCodes {
		if code < 400 || code > 599 {
			return errors.NewConfigError("ignored status code %d must be in [400, 599]", code)
		}
	}

	if strings.TrimSpace(c.OutDir) == "" {
		return errors.NewConfigError("out_dir is required")
	}
	if c.TypingDelay.Duration < 0 {
		return errors.NewConfigError("typing_delay must not be negative")
	}
	if c.MaxRequestRetries < 0 {
		return errors.NewConfigError("max_request_retries must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.NewConfigError("rate_limit must not be negative")
	}
	for name, d := range map[string]Duration{
		"dom_content_loaded": c.Timeouts.DOMContentLoaded,
		"network_idle":       c.Timeouts.NetworkIdle,
		"login_redirect":     c.Timeouts.LoginRedirect,
	} {
		if d.Duration <= 0 {
			return errors.NewConfigError("timeouts.%s must be positive", name)
		}
	}

	entrypoints, err := c.cleanEntrypoints()
	if err != nil {
		return err
	}
	c.entrypoints = entrypoints

	return c.compileMatchers()
}

func cleanBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.NewConfigError("base_url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.NewConfigError("invalid base_url %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewConfigError("base_url %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, errors.NewConfigError("base_url %q has no host", raw)
	}

	return scope.Canonicalize(u), nil
}

func (c *Config) cleanConcurrency() error {
	cc := &c.Concurrency
	if cc.Min < 1 || cc.Max < 1 {
		return errors.NewConfigError("concurrency min and max must be at least 1")
	}
	if cc.Min > cc.Max {
		return errors.NewConfigError("concurrency min (%d) exceeds max (%d)", cc.Min, cc.Max)
	}
	if cc.Desired < cc.Min {
		cc.Desired = cc.Min
	}
	if cc.Desired > cc.Max {
		cc.Desired = cc.Max
	}
	return nil
}

func cleanAPIPrefixes(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))

	for _, p := range raw {
		p = strings.TrimSpace(p)
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		p = strings.TrimRight(p, "/")
		if p == "" {
			return nil, errors.NewConfigError("api path prefix must not be empty")
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	return out, nil
}

func (c *Config) cleanEntrypoints() ([]string, error) {
	origin := scope.Origin(c.base)
	out := make([]string, 0, len(c.AdditionalEntrypoints))

	for _, raw := range c.AdditionalEntrypoints {
		ref, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.NewConfigError("invalid entrypoint %q: %v", raw, err)
		}
		u := c.base.ResolveReference(ref)
		if scope.Origin(u) != origin {
			return nil, errors.NewConfigError("entrypoint %q is not on %s", raw, origin)
		}
		out = append(out, scope.Canonicalize(u).String())
	}

	return out, nil
}

func (c *Config) compileMatchers() error {
	compile := func(list []MatcherConfig) ([]*scope.Matcher, error) {
		out := make([]*scope.Matcher, 0, len(list))
		for _, mc := range list {
			m, err := scope.NewMatcher(mc.Kind, mc.Pattern)
			if err != nil {
				return nil, errors.NewConfigError("%v", err)
			}
			out = append(out, m)
		}
		return out, nil
	}

	include, err := compile(c.IncludeLinks)
	if err != nil {
		return err
	}
	exclude, err := compile(c.ExcludeLinks)
	if err != nil {
		return err
	}

	origin := scope.Origin(c.base)
	if len(include) == 0 {
		m, err := scope.NewMatcher(scope.KindGlob, globEscape(origin)+"/**")
		if err != nil {
			return errors.NewConfigError("%v", err)
		}
		include = append(include, m)
	}
	if c.LoginRequired {
		m, err := scope.NewMatcher(scope.KindGlob, globEscape(origin+c.LoginPath)+"**")
		if err != nil {
			return errors.NewConfigError("%v", err)
		}
		exclude = append(exclude, m)
	}

	c.include = include
	c.exclude = exclude
	return nil
}

// globEscape quotes the glob metacharacters of a literal prefix.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Base returns the validated base URL.
func (c *Config) Base() *url.URL {
	return c.base
}

// IncludeMatchers returns the compiled include matchers.
func (c *Config) IncludeMatchers() []*scope.Matcher {
	return c.include
}

// ExcludeMatchers returns the compiled exclude matchers, including the
// login exclusion.
func (c *Config) ExcludeMatchers() []*scope.Matcher {
	return c.exclude
}

// Entrypoints returns the canonical additional entrypoints.
func (c *Config) Entrypoints() []string {
	return c.entrypoints
}

// LoginURL returns the canonical login page URL.
func (c *Config) LoginURL() string {
	u, err := scope.CanonicalString(strings.TrimRight(c.base.String(), "/") + c.LoginPath)
	if err != nil {
		return c.base.String()
	}
	return u
}

// String renders the configuration for the startup banner with the
// credentials masked.
func (c *Config) String() string {
	var b strings.Builder

	line := func(key string, value interface{}) {
		fmt.Fprintf(&b, "%-32s %v\n", key+":", value)
	}
	patterns := func(list []MatcherConfig, compiled []*scope.Matcher) []string {
		out := make([]string, 0, len(list))
		if compiled != nil {
			for _, m := range compiled {
				out = append(out, m.String())
			}
			return out
		}
		for _, mc := range list {
			out = append(out, mc.Pattern)
		}
		return out
	}

	line("base_url", c.BaseURL)
	line("login_required", c.LoginRequired)
	line("login_path", c.LoginPath)
	line("login", auth.MaskValue(c.Login))
	line("password", auth.MaskValue(c.Password))
	line("login_input_selector", c.LoginInputSelector)
	line("password_input_selector", c.PasswordInputSelector)
	line("headless", c.Headless)
	line("concurrency", fmt.Sprintf("min=%d max=%d desired=%d", c.Concurrency.Min, c.Concurrency.Max, c.Concurrency.Desired))
	line("out_dir", c.OutDir)
	line("typing_delay", c.TypingDelay)
	line("include_links", patterns(c.IncludeLinks, c.include))
	line("exclude_links", patterns(c.ExcludeLinks, c.exclude))
	line("dom_content_loaded_timeout", c.Timeouts.DOMContentLoaded)
	line("network_idle_timeout", c.Timeouts.NetworkIdle)
	line("rerender_timeout", c.Timeouts.Rerender)
	line("login_redirect_timeout", c.Timeouts.LoginRedirect)
	line("scroll_timeout", c.Timeouts.Scroll)
	line("additional_entrypoints", c.AdditionalEntrypoints)
	line("ignore_http_error_status_codes", c.IgnoreHTTPErrorStatusCodes)
	line("api_path_prefixes", c.APIPathPrefixes)
	line("max_request_retries", c.MaxRequestRetries)
	line("rate_limit", c.RateLimit)
	line("report_file", c.ReportFile)
	line("events_file", c.EventsFile)
	line("strict_asset_claims", c.StrictAssetClaims)
	line("verbose", c.Verbose)
	line("quiet", c.Quiet)

	return b.String()
}
