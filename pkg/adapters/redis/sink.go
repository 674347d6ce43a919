// Package redis mirrors owner events into Redis streams for audit and export.
// The engine never reads them back to serve subscribers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/domain"
)

// ErrSinkFull is returned by Publish when the write queue is saturated.
var ErrSinkFull = errors.New("redis sink queue full")

// ErrSinkClosed is returned by Publish after Close.
var ErrSinkClosed = errors.New("redis sink closed")

// Sink implements ports.MirrorStore with one Redis stream per owner.
// Publish only enqueues; a background goroutine performs the writes.
type Sink struct {
	client *backend.Client
	prefix string
	maxLen int64
	ttl    time.Duration
	buffer int
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan domain.Event
	done    chan struct{}
	dropped atomic.Int64
}

type Option func(*Sink)

// WithPrefix sets the stream key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		s.prefix = prefix
	}
}

// WithMaxLen caps each stream at n entries (exact trimming). 0 disables trimming.
func WithMaxLen(n int64) Option {
	return func(s *Sink) {
		s.maxLen = n
	}
}

// WithTTL expires an owner's stream ttl after its last event.
func WithTTL(ttl time.Duration) Option {
	return func(s *Sink) {
		s.ttl = ttl
	}
}

// WithBuffer sets the write queue capacity.
func WithBuffer(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a sink connected to the given Redis server.
func New(address, password string, db int, opts ...Option) *Sink {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a sink from an existing client and starts its writer.
func NewFromClient(client *backend.Client, opts ...Option) *Sink {
	s := &Sink{
		client: client,
		prefix: "uimorn:events:",
		buffer: 1024,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = make(chan domain.Event, s.buffer)
	s.done = make(chan struct{})
	go s.drain()
	return s
}

func (s *Sink) key(ownerID string) string {
	return s.prefix + ownerID
}

// Ping checks connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Publish enqueues ev for writing without blocking.
func (s *Sink) Publish(_ context.Context, ev domain.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- ev:
		return nil
	default:
		s.dropped.Add(1)
		return ErrSinkFull
	}
}

// Dropped returns how many events were rejected because the queue was full.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

func (s *Sink) drain() {
	defer close(s.done)
	for ev := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.write(ctx, ev); err != nil {
			s.logger.Warn("failed to mirror event", "owner_id", ev.OwnerID, "sequence", ev.Sequence, "error", err)
		}
		cancel()
	}
}

func (s *Sink) write(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.XAdd(ctx, &backend.XAddArgs{
		Stream: s.key(ev.OwnerID),
		MaxLen: s.maxLen,
		ID:     "*",
		Values: map[string]any{
			"sequence": ev.Sequence,
			"kind":     ev.Kind,
			"event":    data,
		},
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(ev.OwnerID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write to redis: %w", err)
	}
	return nil
}

// Events reads back every mirrored event of an owner in append order.
func (s *Sink) Events(ctx context.Context, ownerID string) ([]domain.Event, error) {
	msgs, err := s.client.XRange(ctx, s.key(ownerID), "-", "+").Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	out := make([]domain.Event, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode stream entry %s: %w", msg.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Close stops accepting events, flushes the queue and closes the client.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.client.Close()
}
