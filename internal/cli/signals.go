package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultShutdownTimeout bounds the shutdown hooks together.
const DefaultShutdownTimeout = 15 * time.Second

// SignalHandler runs shutdown hooks on SIGINT or SIGTERM
type SignalHandler struct {
	signals      chan os.Signal
	shutdown     chan struct{}
	stopCh       chan struct{} // closed by Stop to signal goroutine to exit
	done         chan struct{} // closed when goroutine exits
	stopOnce     sync.Once
	shutdownOnce sync.Once
	cancel       context.CancelFunc
	timeout      time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	hooks []shutdownHook
}

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

// NewSignalHandler creates a signal handler that cancels cancel first and
// then runs the hooks.
func NewSignalHandler(cancel context.CancelFunc, logger *slog.Logger) *SignalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalHandler{
		signals:  make(chan os.Signal, 1),
		shutdown: make(chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		cancel:   cancel,
		timeout:  DefaultShutdownTimeout,
		logger:   logger,
	}
}

// Start begins listening for signals
func (h *SignalHandler) Start() {
	h.StartWithNotify(true)
}

// StartWithNotify begins listening for signals, optionally registering with OS signal handling.
// Pass false for notify in unit tests to avoid global signal state interactions.
func (h *SignalHandler) StartWithNotify(notify bool) {
	if notify {
		signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	}

	started := make(chan struct{})
	go func() {
		defer close(h.done)
		close(started)

		select {
		case sig := <-h.signals:
			h.logger.Info("received signal, shutting down", "signal", sig.String())
			h.Shutdown()
		case <-h.stopCh:
			return
		}
	}()

	<-started
}

// OnShutdown registers a hook. Hooks run in reverse registration order,
// like deferred calls, and share one timeout.
func (h *SignalHandler) OnShutdown(name string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, shutdownHook{name: name, fn: fn})
}

// Shutdown cancels the context and runs the hooks. Only the first call has
// any effect; later calls block until it completes.
func (h *SignalHandler) Shutdown() {
	h.shutdownOnce.Do(func() {
		defer close(h.shutdown)

		h.mu.Lock()
		hooks := make([]shutdownHook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		if h.cancel != nil {
			h.cancel()
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i].fn(ctx); err != nil {
				h.logger.Error("shutdown step failed", "step", hooks[i].name, "error", err)
			}
		}
	})
}

// Wait blocks until shutdown has completed
func (h *SignalHandler) Wait() {
	<-h.shutdown
}

// Stop stops listening for signals without running the hooks
func (h *SignalHandler) Stop() {
	signal.Stop(h.signals)
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	select {
	case <-h.done:
	case <-time.After(100 * time.Millisecond):
	}
}
