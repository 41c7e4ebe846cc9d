package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// =============================================================================
// Config Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", config.Timeout)
	}
	if config.MaxIdleConnsPerHost != 50 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 50", config.MaxIdleConnsPerHost)
	}
	if config.UserAgent == "" {
		t.Error("UserAgent should not be empty")
	}
	if !config.SkipTLSVerify {
		t.Error("SkipTLSVerify should be true by default")
	}
}

// =============================================================================
// FetchClient Tests
// =============================================================================

func TestFetchClient_WithTimeoutCached(t *testing.T) {
	fc := NewFetchClient(DefaultConfig())
	defer fc.Close()

	a := fc.WithTimeout(5 * time.Second)
	b := fc.WithTimeout(5 * time.Second)
	c := fc.WithTimeout(10 * time.Second)

	if a != b {
		t.Error("WithTimeout should reuse the client for the same timeout")
	}
	if a == c {
		t.Error("WithTimeout should build a new client for a different timeout")
	}
	if c.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", c.Timeout)
	}
	if fc.Client().Timeout != fc.Timeout() {
		t.Errorf("Client().Timeout = %v, want %v", fc.Client().Timeout, fc.Timeout())
	}
}

func TestFetchClient_DoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		w.Write([]byte("new"))
	}))
	defer server.Close()

	fc := NewFetchClient(DefaultConfig())
	defer fc.Close()

	resp, err := fc.Client().Get(server.URL + "/old")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/new" {
		t.Errorf("Location = %q, want /new", loc)
	}
}

func TestFetchClient_Headers(t *testing.T) {
	var gotUA, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Custom")
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	tests := []struct {
		name     string
		reqUA    string
		wantUA   string
		wantCust string
	}{
		{"fills missing user agent", "", "TestBot/1.0", "yes"},
		{"keeps browser user agent", "Chrome/120", "Chrome/120", "yes"},
	}

	config := DefaultConfig()
	config.UserAgent = "TestBot/1.0"
	config.Headers = map[string]string{"X-Custom": "yes"}
	fc := NewFetchClient(config)
	defer fc.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			if tt.reqUA != "" {
				req.Header.Set("User-Agent", tt.reqUA)
			}
			resp, err := fc.Client().Do(req)
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			resp.Body.Close()

			if gotUA != tt.wantUA {
				t.Errorf("User-Agent = %q, want %q", gotUA, tt.wantUA)
			}
			if gotCustom != tt.wantCust {
				t.Errorf("X-Custom = %q, want %q", gotCustom, tt.wantCust)
			}
		})
	}
}

// =============================================================================
// CookieHeader Tests
// =============================================================================

func TestCookieHeader(t *testing.T) {
	tests := []struct {
		name    string
		cookies []*http.Cookie
		want    string
	}{
		{"empty", nil, ""},
		{"single", []*http.Cookie{{Name: "sid", Value: "abc"}}, "sid=abc"},
		{"multiple", []*http.Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}, "a=1; b=2"},
		{"skips nil and unnamed", []*http.Cookie{nil, {Value: "x"}, {Name: "c", Value: "3"}}, "c=3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CookieHeader(tt.cookies); got != tt.want {
				t.Errorf("CookieHeader() = %q, want %q", got, tt.want)
			}
		})
	}
}
