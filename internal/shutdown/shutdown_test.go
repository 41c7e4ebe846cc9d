package shutdown

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if len(cfg.Signals) != 2 {
		t.Errorf("Signals length = %d, want 2", len(cfg.Signals))
	}
}

func TestHandler_CallbacksRunLIFO(t *testing.T) {
	h := New(context.Background(), DefaultConfig())
	var order []string

	h.RegisterFunc("browser", func() { order = append(order, "browser") })
	h.RegisterFunc("report", func() { order = append(order, "report") })

	if errs := h.Shutdown(); len(errs) != 0 {
		t.Fatalf("Shutdown() errors = %v", errs)
	}

	if len(order) != 2 || order[0] != "report" || order[1] != "browser" {
		t.Errorf("order = %v, want [report browser]", order)
	}
}

func TestHandler_ShutdownCancelsContext(t *testing.T) {
	h := New(context.Background(), DefaultConfig())

	h.Shutdown()

	select {
	case <-h.Context().Done():
	default:
		t.Error("context should be cancelled")
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done() should be closed")
	}
	if !h.IsShuttingDown() {
		t.Error("IsShuttingDown() = false, want true")
	}
}

func TestHandler_ShutdownOnce(t *testing.T) {
	h := New(context.Background(), DefaultConfig())
	var calls atomic.Int32
	h.RegisterFunc("x", func() { calls.Add(1) })

	h.Shutdown()
	h.Shutdown()

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestHandler_CallbackErrors(t *testing.T) {
	h := New(context.Background(), DefaultConfig())
	want := errors.New("close failed")
	h.Register("bad", func(ctx context.Context) error { return want })

	errs := h.Shutdown()
	if len(errs) != 1 || !errors.Is(errs[0], want) {
		t.Errorf("errs = %v, want [%v]", errs, want)
	}
}

func TestHandler_CallbackTimeout(t *testing.T) {
	h := New(context.Background(), Config{Timeout: 20 * time.Millisecond})
	h.Register("slow", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})

	errs := h.Shutdown()
	if len(errs) != 1 {
		t.Fatalf("len(errs) = %d, want 1", len(errs))
	}
	var te *TimeoutError
	if !errors.As(errs[0], &te) || te.CallbackName != "slow" {
		t.Errorf("err = %v, want TimeoutError for slow", errs[0])
	}
}

func TestHandler_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	h := New(parent, DefaultConfig())

	cancel()

	select {
	case <-h.Context().Done():
	case <-time.After(time.Second):
		t.Error("context should follow its parent")
	}
}

func TestHandler_Trigger(t *testing.T) {
	var got atomic.Value
	h := New(context.Background(), Config{OnSignal: func(s os.Signal) { got.Store(s.String()) }})
	h.Listen()
	defer h.Shutdown()

	h.Trigger()

	select {
	case <-h.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("Trigger() should cancel the context")
	}
	if got.Load() == nil {
		t.Error("OnSignal should be called")
	}
}
