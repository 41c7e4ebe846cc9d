package queue

import (
	"container/heap"
	"context"
	"sync"

	"github.com/PentesterFlow/spa-crawler/internal/state"
)

// requestHeap orders login requests first, then by insertion order.
type requestHeap []*Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].IsLogin() != h[j].IsLogin() {
		return h[i].IsLogin()
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *requestHeap) Push(x interface{}) {
	*h = append(*h, x.(*Request))
}

func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

// Frontier is a thread-safe pending-request queue. Every unique key is
// accepted at most once per run, so a URL that is pending, in flight or
// already handled is never queued again.
type Frontier struct {
	mu       sync.Mutex
	pending  requestHeap
	seen     *state.KeySet
	inFlight int
	handled  int
	seq      uint64
	closed   bool
	changed  chan struct{}
}

// NewFrontier creates an empty frontier sized for roughly estimated keys.
func NewFrontier(estimated int) *Frontier {
	f := &Frontier{
		pending: make(requestHeap, 0),
		seen:    state.NewKeySet(estimated),
		changed: make(chan struct{}),
	}
	heap.Init(&f.pending)
	return f
}

// notify wakes every blocked Next. Caller holds mu.
func (f *Frontier) notify() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// Push queues req unless its key was seen before. It reports whether the
// request was accepted.
func (f *Frontier) Push(req *Request) bool {
	if req == nil || req.URL == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if !f.seen.Claim(req.Key()) {
		return false
	}

	f.seq++
	req.seq = f.seq
	heap.Push(&f.pending, req)
	f.notify()
	return true
}

// Next returns the highest-priority pending request and marks it in flight.
// It blocks while the queue is empty but other requests are still in flight,
// since those may discover more work. It returns ErrDrained when nothing is
// pending or in flight.
func (f *Frontier) Next(ctx context.Context) (*Request, error) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return nil, ErrClosed
		}
		if f.pending.Len() > 0 {
			req := heap.Pop(&f.pending).(*Request)
			f.inFlight++
			f.mu.Unlock()
			return req, nil
		}
		if f.inFlight == 0 {
			f.mu.Unlock()
			return nil, ErrDrained
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Done marks a request returned by Next as finished.
func (f *Frontier) Done(req *Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight > 0 {
		f.inFlight--
	}
	f.handled++
	f.notify()
}

// Close wakes all waiters and rejects further pushes.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.notify()
}

// Len returns the number of pending requests.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending.Len()
}

// InFlight returns the number of requests currently being handled.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Handled returns the number of requests marked Done.
func (f *Frontier) Handled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handled
}

// Seen returns the number of distinct keys ever accepted.
func (f *Frontier) Seen() int {
	return f.seen.Len()
}

// Contains reports whether key was ever accepted.
func (f *Frontier) Contains(key string) bool {
	return f.seen.Has(key)
}

// IsDrained reports whether the frontier has no pending or in-flight work.
func (f *Frontier) IsDrained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending.Len() == 0 && f.inFlight == 0
}
