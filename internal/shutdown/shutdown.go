// Package shutdown cancels a crawl on SIGINT/SIGTERM and runs cleanup
// callbacks in reverse registration order.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Callback is a function called during shutdown.
type Callback func(ctx context.Context) error

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	// OnSignal is called with the received signal before cancellation.
	OnSignal func(os.Signal)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler owns the crawl context and the cleanup list.
type Handler struct {
	mu        sync.Mutex
	callbacks []namedCallback

	shuttingDown atomic.Bool
	done         chan struct{}
	timeout      time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan  chan os.Signal
	signals  []os.Signal
	onSignal func(os.Signal)
	stopOnce sync.Once
}

type namedCallback struct {
	name string
	fn   Callback
}

// New creates a handler whose context derives from parent.
func New(parent context.Context, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = DefaultConfig().Signals
	}

	ctx, cancel := context.WithCancel(parent)
	return &Handler{
		done:     make(chan struct{}),
		timeout:  cfg.Timeout,
		ctx:      ctx,
		cancel:   cancel,
		sigChan:  make(chan os.Signal, 1),
		signals:  cfg.Signals,
		onSignal: cfg.OnSignal,
	}
}

// Listen subscribes to the configured signals. The first one cancels the
// context.
func (h *Handler) Listen() {
	signal.Notify(h.sigChan, h.signals...)
	go func() {
		select {
		case sig := <-h.sigChan:
			if h.onSignal != nil {
				h.onSignal(sig)
			}
			h.cancel()
		case <-h.ctx.Done():
		}
	}()
}

// Register registers a shutdown callback with a name.
func (h *Handler) Register(name string, fn Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, namedCallback{name: name, fn: fn})
}

// RegisterFunc registers a simple cleanup function.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled on signal or Shutdown.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// IsShuttingDown returns whether shutdown is in progress.
func (h *Handler) IsShuttingDown() bool {
	return h.shuttingDown.Load()
}

// Done is closed when Shutdown completes.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Trigger delivers a synthetic SIGTERM.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
	}
}

// Shutdown cancels the context, runs callbacks LIFO and returns their
// errors. Only the first call does any work.
func (h *Handler) Shutdown() []error {
	if !h.shuttingDown.CompareAndSwap(false, true) {
		<-h.done
		return nil
	}
	defer close(h.done)

	h.cancel()
	h.stopOnce.Do(func() { signal.Stop(h.sigChan) })

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	callbacks := make([]namedCallback, len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := run(ctx, callbacks[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func run(ctx context.Context, cb namedCallback) error {
	done := make(chan error, 1)
	go func() {
		done <- cb.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: cb.name}
	}
}

// TimeoutError is returned when a callback times out.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
