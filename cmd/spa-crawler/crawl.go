package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/spa-crawler/internal/scope"
	"github.com/PentesterFlow/spa-crawler/internal/shutdown"
	"github.com/PentesterFlow/spa-crawler/pkg/crawler"
)

const (
	envLogin    = "SPA_CRAWLER_LOGIN"
	envPassword = "SPA_CRAWLER_PASSWORD"
)

// crawlFlags holds the raw flag values. Only flags the user changed are
// applied on top of the defaults or the config file.
type crawlFlags struct {
	configFile string
	saveConfig string

	baseURL               string
	loginRequired         bool
	loginPath             string
	login                 string
	password              string
	loginInputSelector    string
	passwordInputSelector string
	typingDelay           time.Duration

	headless           bool
	minConcurrency     int
	maxConcurrency     int
	desiredConcurrency int
	outDir             string

	includeRegex []string
	excludeRegex []string
	includeGlob  []string
	excludeGlob  []string

	domContentLoadedTimeout time.Duration
	networkIdleTimeout      time.Duration
	rerenderTimeout         time.Duration
	loginRedirectTimeout    time.Duration

	entrypoints     []string
	ignoredStatuses []int
	apiPrefixes     []string

	report            string
	events            string
	rateLimit         float64
	maxRequestRetries int
	strictAssetClaims bool

	verbose bool
	quiet   bool
}

func newCrawlCmd() *cobra.Command {
	return crawlCommand(&crawlFlags{})
}

func crawlCommand(f *crawlFlags) *cobra.Command {
	defaults := crawler.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl and mirror a site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "YAML or JSON configuration file")
	fl.StringVar(&f.saveConfig, "save-config", "", "Write the effective configuration to this file and exit")

	fl.StringVar(&f.baseURL, "base-url", "", "Site root to crawl (prompted for when empty)")
	fl.BoolVar(&f.loginRequired, "login-required", defaults.LoginRequired, "Log in through a form before crawling")
	fl.StringVar(&f.loginPath, "login-path", defaults.LoginPath, "Path of the login page")
	fl.StringVar(&f.login, "login", "", "Login (default $"+envLogin+")")
	fl.StringVar(&f.password, "password", "", "Password (default $"+envPassword+")")
	fl.StringVar(&f.loginInputSelector, "login-input-selector", defaults.LoginInputSelector, "Selector of the login field")
	fl.StringVar(&f.passwordInputSelector, "password-input-selector", defaults.PasswordInputSelector, "Selector of the password field")
	fl.DurationVar(&f.typingDelay, "typing-delay", defaults.TypingDelay.Duration, "Delay between typed characters")

	fl.BoolVar(&f.headless, "headless", defaults.Headless, "Run the browser headless")
	fl.IntVar(&f.minConcurrency, "min-concurrency", defaults.Concurrency.Min, "Minimum concurrent pages")
	fl.IntVar(&f.maxConcurrency, "max-concurrency", defaults.Concurrency.Max, "Maximum concurrent pages")
	fl.IntVar(&f.desiredConcurrency, "desired-concurrency", defaults.Concurrency.Desired, "Desired concurrent pages")
	fl.StringVarP(&f.outDir, "out-dir", "o", defaults.OutDir, "Output directory")

	fl.StringArrayVar(&f.includeRegex, "include-links-regex", nil, "Regex a followed link must match (repeatable)")
	fl.StringArrayVar(&f.excludeRegex, "exclude-links-regex", nil, "Regex that excludes a link (repeatable)")
	fl.StringArrayVar(&f.includeGlob, "include-links-glob", nil, "Glob a followed link must match (repeatable)")
	fl.StringArrayVar(&f.excludeGlob, "exclude-links-glob", nil, "Glob that excludes a link (repeatable)")

	fl.DurationVar(&f.domContentLoadedTimeout, "dom-content-loaded-timeout", defaults.Timeouts.DOMContentLoaded.Duration, "DOM-ready wait")
	fl.DurationVar(&f.networkIdleTimeout, "network-idle-timeout", defaults.Timeouts.NetworkIdle.Duration, "Network-idle wait")
	fl.DurationVar(&f.rerenderTimeout, "rerender-timeout", defaults.Timeouts.Rerender.Duration, "Settle pause after login page loads")
	fl.DurationVar(&f.loginRedirectTimeout, "success-login-redirect-timeout", defaults.Timeouts.LoginRedirect.Duration, "How long to wait for the post-login redirect")

	fl.StringArrayVar(&f.entrypoints, "additional-crawl-entrypoint-url", nil, "Extra seed URL (repeatable)")
	fl.IntSliceVar(&f.ignoredStatuses, "ignore-http-error-status-code", nil, "HTTP error status to tolerate (repeatable)")
	fl.StringArrayVar(&f.apiPrefixes, "api-path-prefix", defaults.APIPathPrefixes, "Path prefix of API endpoints (repeatable)")

	fl.StringVar(&f.report, "report", "", "Write a JSON crawl report to this file")
	fl.StringVar(&f.events, "events", "", "Stream page and error records to this file as JSON lines")
	fl.Float64Var(&f.rateLimit, "rate-limit", defaults.RateLimit, "Navigations per second, 0 for unlimited")
	fl.IntVar(&f.maxRequestRetries, "max-request-retries", defaults.MaxRequestRetries, "Retries per failed page")
	fl.BoolVar(&f.strictAssetClaims, "strict-asset-claims", defaults.StrictAssetClaims, "Skip assets another page is already writing")

	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Log every page and asset")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "Log critical errors only")

	return cmd
}

func runCrawl(cmd *cobra.Command, f *crawlFlags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	applyEnv(cfg, os.Getenv)

	if strings.TrimSpace(cfg.BaseURL) == "" {
		u, err := promptBaseURL(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		cfg.BaseURL = u
	}

	if f.saveConfig != "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return cfg.SaveToFile(f.saveConfig)
	}

	c, err := crawler.New(crawler.WithConfig(cfg))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !cfg.Quiet {
		fmt.Fprintln(out, cfg.String())
	}

	shutdownCfg := shutdown.DefaultConfig()
	shutdownCfg.OnSignal = func(sig os.Signal) {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nReceived %s, stopping...\n", sig)
	}
	h := shutdown.New(cmd.Context(), shutdownCfg)
	h.Listen()
	defer h.Shutdown()

	result, err := c.Start(h.Context())
	if result != nil && !cfg.Quiet {
		printSummary(out, result)
	}
	return err
}

// loadConfig starts from the config file (or the defaults) and applies the
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command, f *crawlFlags) (*crawler.Config, error) {
	cfg := crawler.DefaultConfig()
	if f.configFile != "" {
		loaded, err := crawler.LoadFromFile(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed

	if changed("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if changed("login-required") {
		cfg.LoginRequired = f.loginRequired
	}
	if changed("login-path") {
		cfg.LoginPath = f.loginPath
	}
	if changed("login") {
		cfg.Login = f.login
	}
	if changed("password") {
		cfg.Password = f.password
	}
	if changed("login-input-selector") {
		cfg.LoginInputSelector = f.loginInputSelector
	}
	if changed("password-input-selector") {
		cfg.PasswordInputSelector = f.passwordInputSelector
	}
	if changed("typing-delay") {
		cfg.TypingDelay = crawler.D(f.typingDelay)
	}
	if changed("headless") {
		cfg.Headless = f.headless
	}
	if changed("min-concurrency") {
		cfg.Concurrency.Min = f.minConcurrency
	}
	if changed("max-concurrency") {
		cfg.Concurrency.Max = f.maxConcurrency
	}
	if changed("desired-concurrency") {
		cfg.Concurrency.Desired = f.desiredConcurrency
	}
	if changed("out-dir") {
		cfg.OutDir = f.outDir
	}

	cfg.IncludeLinks = append(cfg.IncludeLinks, matchers(scope.KindRegex, f.includeRegex)...)
	cfg.IncludeLinks = append(cfg.IncludeLinks, matchers(scope.KindGlob, f.includeGlob)...)
	cfg.ExcludeLinks = append(cfg.ExcludeLinks, matchers(scope.KindRegex, f.excludeRegex)...)
	cfg.ExcludeLinks = append(cfg.ExcludeLinks, matchers(scope.KindGlob, f.excludeGlob)...)

	if changed("dom-content-loaded-timeout") {
		cfg.Timeouts.DOMContentLoaded = crawler.D(f.domContentLoadedTimeout)
	}
	if changed("network-idle-timeout") {
		cfg.Timeouts.NetworkIdle = crawler.D(f.networkIdleTimeout)
	}
	if changed("rerender-timeout") {
		cfg.Timeouts.Rerender = crawler.D(f.rerenderTimeout)
	}
	if changed("success-login-redirect-timeout") {
		cfg.Timeouts.LoginRedirect = crawler.D(f.loginRedirectTimeout)
	}

	cfg.AdditionalEntrypoints = append(cfg.AdditionalEntrypoints, f.entrypoints...)
	cfg.IgnoreHTTPErrorStatusCodes = append(cfg.IgnoreHTTPErrorStatusCodes, f.ignoredStatuses...)
	if changed("api-path-prefix") {
		cfg.APIPathPrefixes = f.apiPrefixes
	}

	if changed("report") {
		cfg.ReportFile = f.report
	}
	if changed("events") {
		cfg.EventsFile = f.events
	}
	if changed("rate-limit") {
		cfg.RateLimit = f.rateLimit
	}
	if changed("max-request-retries") {
		cfg.MaxRequestRetries = f.maxRequestRetries
	}
	if changed("strict-asset-claims") {
		cfg.StrictAssetClaims = f.strictAssetClaims
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("quiet") {
		cfg.Quiet = f.quiet
	}

	return cfg, nil
}

func matchers(kind scope.MatcherKind, patterns []string) []crawler.MatcherConfig {
	out := make([]crawler.MatcherConfig, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, crawler.MatcherConfig{Kind: kind, Pattern: p})
	}
	return out
}

// applyEnv fills empty credentials from the environment.
func applyEnv(cfg *crawler.Config, getenv func(string) string) {
	if cfg.Login == "" {
		cfg.Login = getenv(envLogin)
	}
	if cfg.Password == "" {
		cfg.Password = getenv(envPassword)
	}
}

func promptBaseURL(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Base URL: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read base URL: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("base URL is required")
	}
	return line, nil
}

func printSummary(w io.Writer, result *crawler.CrawlResult) {
	s := result.Stats
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Crawl Summary")
	fmt.Fprintln(w, "=============")
	fmt.Fprintf(w, "Duration:          %v\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Pages visited:     %d\n", s.PagesVisited)
	fmt.Fprintf(w, "Pages saved:       %d\n", s.PagesSaved)
	fmt.Fprintf(w, "Save failures:     %d\n", s.SaveFailures)
	fmt.Fprintf(w, "Links enqueued:    %d\n", s.LinksEnqueued)
	fmt.Fprintf(w, "Downloads:         %d\n", s.Downloads)
	fmt.Fprintf(w, "Assets mirrored:   %d (%d bytes)\n", s.AssetsMirrored, s.AssetBytes)
	fmt.Fprintf(w, "Asset failures:    %d\n", s.AssetWriteFailures)
	fmt.Fprintf(w, "Route errors:      %d\n", s.RouteErrors)
	fmt.Fprintf(w, "Retries:           %d\n", s.Retries)
	fmt.Fprintf(w, "Errors:            %d\n", s.ErrorCount)
	fmt.Fprintf(w, "Output:            %s\n", result.OutDir)

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failed pages:")
		count := 10
		if len(result.Errors) < count {
			count = len(result.Errors)
		}
		for _, e := range result.Errors[:count] {
			fmt.Fprintf(w, "  [%s] %s: %s\n", e.Type, e.URL, e.Error)
		}
		if len(result.Errors) > count {
			fmt.Fprintf(w, "  ... and %d more\n", len(result.Errors)-count)
		}
	}
}
