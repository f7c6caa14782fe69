package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"testing"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func waitShutdown(t *testing.T, h *SignalHandler) {
	t.Helper()
	select {
	case <-h.shutdown:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not complete in time")
	}
}

func TestSignalHandler_CancelsAndRunsHooksInReverse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := NewSignalHandler(cancel, discardLogger)

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	handler.OnShutdown("telemetry", record("telemetry"))
	handler.OnShutdown("orchestrator", record("orchestrator"))
	handler.OnShutdown("http", record("http"))

	handler.StartWithNotify(false)
	handler.signals <- syscall.SIGTERM
	waitShutdown(t, handler)

	if ctx.Err() == nil {
		t.Error("signal should cancel the context")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"http", "orchestrator", "telemetry"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("hook %d: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestSignalHandler_HookErrorDoesNotStopOthers(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := NewSignalHandler(cancel, discardLogger)

	ran := false
	handler.OnShutdown("first", func(context.Context) error {
		ran = true
		return nil
	})
	handler.OnShutdown("second", func(context.Context) error {
		return errors.New("boom")
	})

	handler.Shutdown()
	waitShutdown(t, handler)

	if !ran {
		t.Error("a failing hook should not prevent later hooks")
	}
}

func TestSignalHandler_ShutdownOnce(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := NewSignalHandler(cancel, discardLogger)

	calls := 0
	handler.OnShutdown("count", func(context.Context) error {
		calls++
		return nil
	})

	handler.Shutdown()
	handler.Shutdown()

	if calls != 1 {
		t.Errorf("expected hooks to run once, ran %d times", calls)
	}
}

func TestSignalHandler_WaitBlocksUntilShutdown(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := NewSignalHandler(cancel, discardLogger)
	handler.StartWithNotify(false)

	done := make(chan struct{})
	go func() {
		handler.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait should block until shutdown is triggered")
	case <-time.After(50 * time.Millisecond):
	}

	handler.signals <- syscall.SIGINT

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after shutdown")
	}
}

func TestSignalHandler_StopSkipsHooks(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := NewSignalHandler(cancel, discardLogger)

	ran := false
	handler.OnShutdown("hook", func(context.Context) error {
		ran = true
		return nil
	})
	handler.StartWithNotify(false)
	handler.Stop()

	select {
	case <-handler.done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not exit after Stop")
	}
	if ran {
		t.Error("Stop should not run hooks")
	}
}
