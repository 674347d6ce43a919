// Package memory provides an in-process mirror of owner events.
package memory

import (
	"context"
	"sync"

	"github.com/venikman/ui-morn/pkg/domain"
)

// Store implements ports.MirrorStore in memory.
// Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]domain.Event
	maxLen int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxLen keeps at most n events per owner. 0 keeps everything.
func WithMaxLen(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data: make(map[string][]domain.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish appends ev to its owner's mirror.
func (s *Store) Publish(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := append(s.data[ev.OwnerID], ev)
	if s.maxLen > 0 && len(evs) > s.maxLen {
		evs = append([]domain.Event(nil), evs[len(evs)-s.maxLen:]...)
	}
	s.data[ev.OwnerID] = evs
	return nil
}

// Events returns a copy of the owner's mirrored events.
func (s *Store) Events(_ context.Context, ownerID string) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Event(nil), s.data[ownerID]...), nil
}
