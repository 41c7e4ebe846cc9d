package browser

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func newListeningPage() *rodPage {
	ctx, cancel := context.WithCancel(context.Background())
	p := &rodPage{downloaded: make(chan struct{}), cancel: cancel}
	p.listen(func() { <-ctx.Done() })
	return p
}

// =============================================================================
// Listener Lifecycle Tests
// =============================================================================

func TestRodPage_CloseStopsListeners(t *testing.T) {
	before := runtime.NumGoroutine()

	pages := make([]*rodPage, 20)
	for i := range pages {
		pages[i] = newListeningPage()
	}
	if got := runtime.NumGoroutine(); got < before+len(pages) {
		t.Fatalf("NumGoroutine() = %d, want at least %d", got, before+len(pages))
	}

	for _, p := range pages {
		if err := p.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		for _, p := range pages {
			p.listeners.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listeners still running after Close()")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := runtime.NumGoroutine(); got > before {
		t.Errorf("NumGoroutine() = %d after Close(), want at most %d", got, before)
	}
}

func TestRodPage_CloseTwice(t *testing.T) {
	p := newListeningPage()
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRodPage_DownloadStarted(t *testing.T) {
	p := &rodPage{downloaded: make(chan struct{})}
	var got []string
	p.OnDownload(func(u string) { got = append(got, u) })

	p.downloadStarted("https://example.com/file.zip")
	p.downloadStarted("https://example.com/other.zip")

	select {
	case <-p.downloaded:
	default:
		t.Error("downloaded channel not closed")
	}
	if len(got) != 2 || got[0] != "https://example.com/file.zip" {
		t.Errorf("hooks saw %v", got)
	}
}
