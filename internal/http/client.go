// Package http provides the out-of-band HTTP client used to fetch intercepted
// browser requests.
package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds configuration for the fetch client.
type Config struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	UserAgent           string
	Headers             map[string]string
	SkipTLSVerify       bool
}

// DefaultConfig returns defaults sized for one browser's worth of pages.
func DefaultConfig() Config {
	return Config{
		Timeout:             60 * time.Second,
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 50,
		MaxConnsPerHost:     50,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		SkipTLSVerify:       true,
	}
}

// FetchClient replays intercepted requests. Redirects are never followed so
// the browser sees the original 3xx and handles it itself.
type FetchClient struct {
	transport *http.Transport
	config    Config

	mu      sync.Mutex
	clients map[time.Duration]*http.Client
}

// NewFetchClient creates a fetch client sharing one connection pool.
func NewFetchClient(config Config) *FetchClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	return &FetchClient{
		transport: transport,
		config:    config,
		clients:   make(map[time.Duration]*http.Client),
	}
}

// Client returns the client using the configured timeout.
func (fc *FetchClient) Client() *http.Client {
	return fc.WithTimeout(fc.config.Timeout)
}

// WithTimeout returns a client bound to timeout. Clients are cached per
// timeout and share the transport.
func (fc *FetchClient) WithTimeout(timeout time.Duration) *http.Client {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if c, ok := fc.clients[timeout]; ok {
		return c
	}

	c := &http.Client{
		Transport: &headerTransport{
			base:      fc.transport,
			userAgent: fc.config.UserAgent,
			headers:   fc.config.Headers,
		},
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	fc.clients[timeout] = c
	return c
}

// Timeout returns the default timeout.
func (fc *FetchClient) Timeout() time.Duration {
	return fc.config.Timeout
}

// Close releases idle connections.
func (fc *FetchClient) Close() {
	fc.transport.CloseIdleConnections()
}

// headerTransport fills headers the intercepted request did not carry.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" && len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// CookieHeader renders name/value pairs as a Cookie header value.
func CookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
