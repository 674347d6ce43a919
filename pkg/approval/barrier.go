// Package approval implements the single-slot approval barrier that lets a
// background worker pause until an out-of-band decision arrives.
package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/venikman/ui-morn/pkg/domain"
)

type state int

const (
	waiting state = iota
	resolved
	cancelled
)

// Pending is an outstanding approval request. Arguments holds what the
// worker asks to be approved, e.g. a tool plan.
type Pending struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	CreatedAt time.Time

	done     chan struct{}
	state    state
	decision domain.Decision
}

// Hooks observe barrier transitions. They run outside the barrier lock.
type Hooks struct {
	OnRequest  func(name string)
	OnConflict func(name string)
	OnResolve  func(domain.Decision)
	OnCancel   func()
}

// Barrier holds at most one outstanding approval request for an owner.
type Barrier struct {
	mu      sync.Mutex
	pending *Pending

	hooks Hooks
	newID func() string
	now   func() time.Time
}

// Option configures a Barrier.
type Option func(*Barrier)

// WithHooks installs observation callbacks.
func WithHooks(h Hooks) Option {
	return func(b *Barrier) { b.hooks = h }
}

// WithIDGenerator overrides how request ids are allocated.
func WithIDGenerator(fn func() string) Option {
	return func(b *Barrier) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// New creates an empty barrier.
func New(opts ...Option) *Barrier {
	b := &Barrier{
		newID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Request opens a new approval request. It fails with domain.ErrApprovalConflict
// while another request is still outstanding.
func (b *Barrier) Request(name string, args json.RawMessage) (*Pending, error) {
	b.mu.Lock()
	if b.pending != nil {
		existing := b.pending.ID
		b.mu.Unlock()
		if b.hooks.OnConflict != nil {
			b.hooks.OnConflict(name)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrApprovalConflict, existing)
	}
	p := &Pending{
		ID:        b.newID(),
		Name:      name,
		Arguments: bytes.Clone(args),
		CreatedAt: b.now(),
		done:      make(chan struct{}),
	}
	b.pending = p
	b.mu.Unlock()

	if b.hooks.OnRequest != nil {
		b.hooks.OnRequest(name)
	}
	return p, nil
}

// Resolve settles the outstanding request with the given id. It reports false
// when no such request is waiting, including when it was already resolved or
// its wait was cancelled.
func (b *Barrier) Resolve(id string, approved bool, reason string) bool {
	b.mu.Lock()
	p := b.pending
	if p == nil || p.ID != id || p.state != waiting {
		b.mu.Unlock()
		return false
	}
	p.decision = domain.Decision{Approved: approved, Reason: reason}
	p.state = resolved
	b.pending = nil
	close(p.done)
	d := p.decision
	b.mu.Unlock()

	if b.hooks.OnResolve != nil {
		b.hooks.OnResolve(d)
	}
	return true
}

// Await blocks until p is resolved or ctx ends. Cancellation yields an error
// wrapping domain.ErrApprovalCancelled, never a denied decision. When
// resolution and cancellation race, whichever reaches the barrier lock first
// wins and the other has no effect.
func (b *Barrier) Await(ctx context.Context, p *Pending) (domain.Decision, error) {
	select {
	case <-p.done:
		return p.decision, nil
	case <-ctx.Done():
	}

	b.mu.Lock()
	if p.state == resolved {
		d := p.decision
		b.mu.Unlock()
		return d, nil
	}
	p.state = cancelled
	if b.pending == p {
		b.pending = nil
	}
	b.mu.Unlock()

	if b.hooks.OnCancel != nil {
		b.hooks.OnCancel()
	}
	return domain.Decision{}, fmt.Errorf("%w: %w", domain.ErrApprovalCancelled, ctx.Err())
}

// Pending returns a copy of the outstanding request, if any.
func (b *Barrier) Pending() (Pending, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return Pending{}, false
	}
	return Pending{
		ID:        b.pending.ID,
		Name:      b.pending.Name,
		Arguments: bytes.Clone(b.pending.Arguments),
		CreatedAt: b.pending.CreatedAt,
	}, true
}
