// Package shutdown runs the bridge's teardown steps in registration order
// when a signal arrives or shutdown is requested.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yourusername/lolo-bridge/internal/output"
)

type step struct {
	name string
	fn   func() error
}

// Handler collects teardown steps and runs each of them once
type Handler struct {
	logger       output.Logger
	forceTimeout time.Duration

	mu    sync.Mutex
	steps []step

	signals chan os.Signal
	done    chan struct{}
	once    sync.Once
}

// NewHandler creates a handler listening for SIGINT and SIGTERM. Steps still
// running after forceTimeout are abandoned.
func NewHandler(logger output.Logger, forceTimeout time.Duration) *Handler {
	h := &Handler{
		logger:       logger,
		forceTimeout: forceTimeout,
		signals:      make(chan os.Signal, 1),
		done:         make(chan struct{}),
	}
	signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	return h
}

// Register appends a named step. Steps run in the order they were registered.
func (h *Handler) Register(name string, fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, step{name: name, fn: fn})
}

// Wait blocks until a signal arrives or ctx ends, then shuts down
func (h *Handler) Wait(ctx context.Context) {
	select {
	case sig := <-h.signals:
		h.logger.Info("Received signal: %v", sig)
	case <-ctx.Done():
	}
	h.Shutdown()
}

// Shutdown runs every step once. Later calls wait for the first to finish.
func (h *Handler) Shutdown() {
	h.once.Do(func() {
		defer close(h.done)
		h.logger.Info("Initiating graceful shutdown...")

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			h.runSteps()
		}()

		timer := time.NewTimer(h.forceTimeout)
		defer timer.Stop()
		select {
		case <-finished:
			h.logger.Success("Graceful shutdown completed")
		case <-timer.C:
			h.logger.Warning("Forced shutdown after %v", h.forceTimeout)
		}
	})
	<-h.done
}

func (h *Handler) runSteps() {
	h.mu.Lock()
	steps := make([]step, len(h.steps))
	copy(steps, h.steps)
	h.mu.Unlock()

	for _, s := range steps {
		h.logger.Info("Shutdown: %s", s.name)
		if err := s.fn(); err != nil {
			h.logger.Error("Shutdown step %q failed: %v", s.name, err)
		}
	}
}

// Done is closed once shutdown has completed or been forced
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Stop stops listening for signals
func (h *Handler) Stop() {
	signal.Stop(h.signals)
}
