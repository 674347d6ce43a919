// Package registry maps owner ids to owners.
//
// The registry is the only structure shared by every owner. Its lock is
// independent of any owner's internal lock, so lookups never wait on an
// owner's log or barrier.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Registry is a concurrency-safe id → owner map.
type Registry[T any] struct {
	prefix string

	mu    sync.RWMutex
	items map[string]T
	lru   *expirable.LRU[string, T]

	newID   func() string
	onEvict func(id string, v T)
}

// Option configures a Registry.
type Option[T any] func(*Registry[T])

// WithTTL bounds the registry to at most size owners, each evicted ttl after
// it was last stored. size <= 0 means no size bound.
func WithTTL[T any](size int, ttl time.Duration) Option[T] {
	return func(r *Registry[T]) {
		if size < 0 {
			size = 0
		}
		r.lru = expirable.NewLRU[string, T](size, func(id string, v T) {
			if r.onEvict != nil {
				r.onEvict(id, v)
			}
		}, ttl)
	}
}

// WithEvictCallback is called when an owner leaves a TTL-bounded registry.
func WithEvictCallback[T any](fn func(id string, v T)) Option[T] {
	return func(r *Registry[T]) { r.onEvict = fn }
}

// WithIDGenerator overrides the random part of allocated ids.
func WithIDGenerator[T any](fn func() string) Option[T] {
	return func(r *Registry[T]) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// New creates a registry whose allocated ids look like "<prefix>_<hex>".
func New[T any](prefix string, opts ...Option[T]) *Registry[T] {
	r := &Registry[T]{
		prefix: prefix,
		items:  make(map[string]T),
		newID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry[T]) allocate() string {
	if r.prefix == "" {
		return r.newID()
	}
	return r.prefix + "_" + r.newID()
}

// Create allocates a fresh id and stores the owner built by newFn.
func (r *Registry[T]) Create(newFn func(id string) T) T {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.allocate()
	for r.containsLocked(id) {
		id = r.allocate()
	}
	v := newFn(id)
	r.storeLocked(id, v)
	return v
}

// GetOrCreate returns the owner stored under id, creating it with newFn when
// absent. A blank id allocates a new one. The bool reports whether it was created.
func (r *Registry[T]) GetOrCreate(id string, newFn func(id string) T) (T, bool) {
	if strings.TrimSpace(id) == "" {
		return r.Create(newFn), true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.getLocked(id); ok {
		return v, false
	}
	v := newFn(id)
	r.storeLocked(id, v)
	return v, true
}

// Get looks up id. A missing id is a normal negative result.
func (r *Registry[T]) Get(id string) (T, bool) {
	if r.lru != nil {
		// expirable.LRU reorders on Get, so it needs the write lock.
		r.mu.Lock()
		defer r.mu.Unlock()
	} else {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	return r.getLocked(id)
}

// Values returns a snapshot of every stored owner.
func (r *Registry[T]) Values() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lru != nil {
		return r.lru.Values()
	}
	out := make([]T, 0, len(r.items))
	for _, v := range r.items {
		out = append(out, v)
	}
	return out
}

// Len returns the number of stored owners.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lru != nil {
		return r.lru.Len()
	}
	return len(r.items)
}

func (r *Registry[T]) containsLocked(id string) bool {
	if r.lru != nil {
		return r.lru.Contains(id)
	}
	_, ok := r.items[id]
	return ok
}

func (r *Registry[T]) getLocked(id string) (T, bool) {
	if r.lru != nil {
		return r.lru.Get(id)
	}
	v, ok := r.items[id]
	return v, ok
}

func (r *Registry[T]) storeLocked(id string, v T) {
	if r.lru != nil {
		r.lru.Add(id, v)
		return
	}
	r.items[id] = v
}
