package eventlog

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/venikman/ui-morn/pkg/domain"
)

// Subscription is one consumer's view of a log: the replayed backlog
// followed by live events.
type Subscription struct {
	log      *Log
	backlog  []domain.Event
	live     chan domain.Event
	overflow atomic.Bool
	once     sync.Once
	last     int64
}

// Next returns the next event in sequence order.
// It returns io.EOF once the log completes or the subscription is cancelled,
// domain.ErrSlowConsumer if the subscriber was disconnected for falling
// behind, or ctx.Err() if ctx ends first.
func (s *Subscription) Next(ctx context.Context) (domain.Event, error) {
	if len(s.backlog) > 0 {
		ev := s.backlog[0]
		s.backlog[0] = domain.Event{}
		s.backlog = s.backlog[1:]
		s.last = ev.Sequence
		return ev, nil
	}
	if s.live == nil {
		return domain.Event{}, io.EOF
	}

	select {
	case ev, ok := <-s.live:
		if !ok {
			if s.overflow.Load() {
				return domain.Event{}, domain.ErrSlowConsumer
			}
			return domain.Event{}, io.EOF
		}
		s.last = ev.Sequence
		return ev, nil
	case <-ctx.Done():
		return domain.Event{}, ctx.Err()
	}
}

// Cursor returns the sequence of the last event returned by Next.
func (s *Subscription) Cursor() int64 { return s.last }

// Live reports whether the subscription joined the live feed.
// It is false when the log was already complete at subscribe time.
func (s *Subscription) Live() bool { return s.live != nil }

// Cancel stops live delivery. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.live != nil {
			s.log.unsubscribe(s)
		}
	})
}
