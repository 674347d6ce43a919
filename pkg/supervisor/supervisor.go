// Package supervisor runs orchestrator work in the background with explicit
// cancellation and fault capture. Every supervised run ends its task: a
// failure becomes an "error" event, a cancellation a "canceled" event, and the
// task is completed in all cases.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/domain"
)

// ErrShuttingDown is returned by Start after Shutdown has begun.
var ErrShuttingDown = errors.New("supervisor shutting down")

// ErrCanceledByRequest is the cancellation cause recorded by Cancel.
var ErrCanceledByRequest = errors.New("canceled by request")

// ErrEvicted is the cancellation cause for tasks dropped by retention.
var ErrEvicted = errors.New("task evicted")

// errShutdown is the cancellation cause recorded by Shutdown.
var errShutdown = errors.New("server shutting down")

// Outcomes reported to Hooks.OnFinish.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
	OutcomePanicked  = "panicked"
)

// Target is the owner a supervised run reports into.
type Target interface {
	ID() string
	Append(kind string, parts ...domain.Part) (domain.Event, error)
	Complete() bool
}

// Hooks observe supervised runs.
type Hooks struct {
	OnStart  func(id string)
	OnFinish func(id, outcome string)
}

// Supervisor tracks running workers by owner id.
type Supervisor struct {
	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
	closed  bool
	wg      sync.WaitGroup

	hooks  Hooks
	logger *slog.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithHooks installs observation callbacks.
func WithHooks(h Hooks) Option {
	return func(s *Supervisor) { s.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		running: make(map[string]context.CancelCauseFunc),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs fn for target in its own goroutine. The run context keeps the
// values of parent but not its cancellation, so the worker outlives the
// request that started it; use Cancel or Shutdown to stop it.
func (s *Supervisor) Start(parent context.Context, target Target, fn func(ctx context.Context) error) error {
	id := target.ID()
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel(errShutdown)
		return ErrShuttingDown
	}
	if _, dup := s.running[id]; dup {
		s.mu.Unlock()
		cancel(nil)
		return fmt.Errorf("worker for %s already running", id)
	}
	s.running[id] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	if s.hooks.OnStart != nil {
		s.hooks.OnStart(id)
	}
	go s.run(ctx, cancel, target, fn)
	return nil
}

func (s *Supervisor) run(ctx context.Context, cancel context.CancelCauseFunc, target Target, fn func(context.Context) error) {
	id := target.ID()
	outcome := OutcomeSucceeded
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		cancel(nil)
		if s.hooks.OnFinish != nil {
			s.hooks.OnFinish(id, outcome)
		}
		s.wg.Done()
	}()
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomePanicked
			s.logger.Error("worker panic", "owner_id", id, "panic", r, "stack", string(debug.Stack()))
			s.fail(target, fmt.Errorf("panic: %v", r))
		}
		target.Complete()
	}()

	err := fn(ctx)
	switch {
	case err == nil:
	case isCancellation(ctx, err):
		outcome = OutcomeCanceled
		cause := context.Cause(ctx)
		if cause == nil {
			cause = err
		}
		s.logger.Info("worker canceled", "owner_id", id, "cause", cause)
		s.appendTerminal(target, domain.KindCanceled, "Canceled: "+cause.Error())
	default:
		outcome = OutcomeFailed
		s.logger.Warn("worker failed", "owner_id", id, "error", err)
		s.fail(target, err)
	}
}

func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrApprovalCancelled) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

func (s *Supervisor) fail(target Target, err error) {
	s.appendTerminal(target, domain.KindError, "Error: "+err.Error())
}

func (s *Supervisor) appendTerminal(target Target, kind, text string) {
	if _, err := target.Append(kind, domain.TextPart(text)); err != nil && !errors.Is(err, domain.ErrOwnerCompleted) {
		s.logger.Warn("failed to record terminal event", "owner_id", target.ID(), "kind", kind, "error", err)
	}
}

// Cancel stops the worker for id. It reports whether a worker was running.
func (s *Supervisor) Cancel(id string) bool {
	return s.CancelCause(id, ErrCanceledByRequest)
}

// CancelCause stops the worker for id, recording cause in its canceled event.
// It reports whether a worker was running.
func (s *Supervisor) CancelCause(id string, cause error) bool {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel(cause)
	}
	return ok
}

// Active returns the number of running workers.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown rejects new work, cancels every running worker and waits for them
// to finish or for ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.running {
		cancel(errShutdown)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("supervisor shutdown: %w", ctx.Err())
	}
}
