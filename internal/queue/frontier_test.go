package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Request Tests
// =============================================================================

func TestRequest_Key(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"unique key wins", Request{URL: "https://example.com/a/", UniqueKey: "https://example.com/a"}, "https://example.com/a"},
		{"falls back to url", Request{URL: "https://example.com/b"}, "https://example.com/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Key(); got != tt.want {
				t.Errorf("Key() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequest_IsLogin(t *testing.T) {
	if !(&Request{Label: LabelLogin}).IsLogin() {
		t.Error("login label should report IsLogin")
	}
	if (&Request{}).IsLogin() {
		t.Error("unlabeled request should not be login")
	}
}

// =============================================================================
// Frontier Tests
// =============================================================================

func TestFrontier_PushDedup(t *testing.T) {
	f := NewFrontier(100)

	tests := []struct {
		name string
		req  *Request
		want bool
	}{
		{"first", &Request{URL: "https://example.com/a"}, true},
		{"same key", &Request{URL: "https://example.com/a/", UniqueKey: "https://example.com/a"}, false},
		{"other", &Request{URL: "https://example.com/b"}, true},
		{"nil", nil, false},
		{"empty url", &Request{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Push(tt.req); got != tt.want {
				t.Errorf("Push() = %v, want %v", got, tt.want)
			}
		})
	}

	if f.Len() != 2 {
		t.Errorf("Len() = %d, want 2", f.Len())
	}
	if !f.Contains("https://example.com/a") {
		t.Error("Contains should report accepted key")
	}
}

func TestFrontier_NoReenqueueAfterDone(t *testing.T) {
	f := NewFrontier(100)
	ctx := context.Background()

	f.Push(&Request{URL: "https://example.com/a"})
	req, err := f.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	if f.Push(&Request{URL: "https://example.com/a"}) {
		t.Error("in-flight key must not be re-enqueued")
	}
	f.Done(req)
	if f.Push(&Request{URL: "https://example.com/a"}) {
		t.Error("handled key must not be re-enqueued")
	}
	if f.Handled() != 1 {
		t.Errorf("Handled() = %d, want 1", f.Handled())
	}
}

func TestFrontier_LoginFirstThenFIFO(t *testing.T) {
	f := NewFrontier(100)
	ctx := context.Background()

	f.Push(&Request{URL: "https://example.com/"})
	f.Push(&Request{URL: "https://example.com/x"})
	f.Push(&Request{URL: "https://example.com/login", Label: LabelLogin})
	f.Push(&Request{URL: "https://example.com/y"})

	want := []string{
		"https://example.com/login",
		"https://example.com/",
		"https://example.com/x",
		"https://example.com/y",
	}
	for i, w := range want {
		req, err := f.Next(ctx)
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if req.URL != w {
			t.Errorf("Next() #%d = %v, want %v", i, req.URL, w)
		}
		f.Done(req)
	}
}

func TestFrontier_DrainedWhenEmpty(t *testing.T) {
	f := NewFrontier(100)

	_, err := f.Next(context.Background())
	if !errors.Is(err, ErrDrained) {
		t.Errorf("Next() on empty frontier error = %v, want ErrDrained", err)
	}
	if !f.IsDrained() {
		t.Error("IsDrained() should be true")
	}
}

func TestFrontier_NextWaitsForInFlight(t *testing.T) {
	f := NewFrontier(100)
	ctx := context.Background()

	f.Push(&Request{URL: "https://example.com/"})
	first, _ := f.Next(ctx)

	got := make(chan *Request, 1)
	go func() {
		req, err := f.Next(ctx)
		if err != nil {
			got <- nil
			return
		}
		got <- req
	}()

	time.Sleep(20 * time.Millisecond)
	f.Push(&Request{URL: "https://example.com/found"})
	f.Done(first)

	select {
	case req := <-got:
		if req == nil || req.URL != "https://example.com/found" {
			t.Errorf("blocked Next() = %v, want discovered request", req)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Next() did not wake")
	}
}

func TestFrontier_NextReturnsDrainedAfterLastDone(t *testing.T) {
	f := NewFrontier(100)
	ctx := context.Background()

	f.Push(&Request{URL: "https://example.com/"})
	first, _ := f.Next(ctx)

	errc := make(chan error, 1)
	go func() {
		_, err := f.Next(ctx)
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	f.Done(first)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrDrained) {
			t.Errorf("Next() error = %v, want ErrDrained", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next() did not observe drain")
	}
}

func TestFrontier_NextContextCancel(t *testing.T) {
	f := NewFrontier(100)
	f.Push(&Request{URL: "https://example.com/"})
	_, _ = f.Next(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Next(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want DeadlineExceeded", err)
	}
}

func TestFrontier_Close(t *testing.T) {
	f := NewFrontier(100)
	f.Close()
	f.Close()

	if f.Push(&Request{URL: "https://example.com/"}) {
		t.Error("Push after Close should be rejected")
	}
	if _, err := f.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() after Close error = %v, want ErrClosed", err)
	}
}

func TestFrontier_ConcurrentWorkers(t *testing.T) {
	f := NewFrontier(1000)
	ctx := context.Background()

	f.Push(&Request{URL: "https://example.com/0"})

	var mu sync.Mutex
	visited := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				req, err := f.Next(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				visited[req.URL]++
				mu.Unlock()

				// Every page links to the next few pages, including duplicates.
				var n int
				fmt.Sscanf(req.URL, "https://example.com/%d", &n)
				for i := n; i < n+3 && i < 50; i++ {
					f.Push(&Request{URL: fmt.Sprintf("https://example.com/%d", i)})
				}
				f.Done(req)
			}
		}()
	}
	wg.Wait()

	if len(visited) != 50 {
		t.Errorf("visited %d pages, want 50", len(visited))
	}
	for u, n := range visited {
		if n != 1 {
			t.Errorf("%s visited %d times, want 1", u, n)
		}
	}
	if f.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", f.InFlight())
	}
	if f.Seen() != 50 {
		t.Errorf("Seen() = %d, want 50", f.Seen())
	}
}
