package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/ports"
)

// Log is the ordered, replayable event history of one owner.
// All mutations happen under a single per-log mutex.
type Log struct {
	ownerID string

	mu        sync.Mutex
	events    []domain.Event
	seq       int64
	completed bool
	subs      map[*Subscription]struct{}

	buffer    int
	retention Retention
	hooks     Hooks
	sink      ports.EventSink
	outbox    []domain.Event // appended, not yet published; guarded by mu
	publishMu sync.Mutex     // serializes sink delivery in sequence order
	now       func() time.Time
	logger    *slog.Logger
}

// New creates an empty log for ownerID.
func New(ownerID string, opts ...Option) *Log {
	l := &Log{
		ownerID:   ownerID,
		subs:      make(map[*Subscription]struct{}),
		buffer:    DefaultBuffer,
		retention: Unbounded(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OwnerID returns the id of the owner this log belongs to.
func (l *Log) OwnerID() string { return l.ownerID }

// Append records a new event and delivers it to every live subscriber.
func (l *Log) Append(kind string, parts ...domain.Part) (domain.Event, error) {
	return l.append(kind, parts, false)
}

// AppendFinal records a new event and completes the log in the same
// critical section, so no other append can follow it.
func (l *Log) AppendFinal(kind string, parts ...domain.Part) (domain.Event, error) {
	return l.append(kind, parts, true)
}

func (l *Log) append(kind string, parts []domain.Part, final bool) (domain.Event, error) {
	l.mu.Lock()
	if l.completed {
		l.mu.Unlock()
		return domain.Event{}, domain.ErrOwnerCompleted
	}

	l.seq++
	ev := domain.Event{
		OwnerID:   l.ownerID,
		Sequence:  l.seq,
		Kind:      kind,
		Parts:     append([]domain.Part(nil), parts...),
		Timestamp: l.now(),
	}
	l.events = append(l.events, ev)
	if drop := l.retention.Trim(len(l.events)); drop > 0 {
		clear(l.events[:drop])
		l.events = l.events[drop:]
	}

	if l.sink != nil {
		l.outbox = append(l.outbox, ev)
	}

	dropped := 0
	for s := range l.subs {
		select {
		case s.live <- ev:
		default:
			s.overflow.Store(true)
			l.detachLocked(s)
			dropped++
		}
	}

	closed := 0
	if final {
		l.completed = true
		closed = l.closeAllLocked()
	}
	l.mu.Unlock()

	if dropped > 0 {
		l.logger.Warn("subscriber queue full, disconnecting",
			"owner_id", l.ownerID, "sequence", ev.Sequence, "dropped", dropped)
		l.hooks.overflowed(l.ownerID, dropped)
		l.hooks.unsubscribed(l.ownerID, dropped)
	}
	l.hooks.appended(ev)
	if final {
		l.hooks.unsubscribed(l.ownerID, closed)
		l.hooks.completed(l.ownerID)
	}
	l.publish()
	return ev, nil
}

// publish delivers the outbox to the sink outside the log lock. Whoever holds
// publishMu drains everything queued so far, so the sink sees sequence order
// even under concurrent appends.
func (l *Log) publish() {
	if l.sink == nil {
		return
	}
	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	l.mu.Lock()
	batch := l.outbox
	l.outbox = nil
	l.mu.Unlock()

	for _, ev := range batch {
		if err := l.sink.Publish(context.Background(), ev); err != nil {
			l.logger.Warn("event sink publish failed", "owner_id", l.ownerID, "sequence", ev.Sequence, "error", err)
		}
	}
}

// Complete marks the log as finished and ends every live subscription after
// the events already queued. It reports whether this call did the completing.
func (l *Log) Complete() bool {
	l.mu.Lock()
	if l.completed {
		l.mu.Unlock()
		return false
	}
	l.completed = true
	closed := l.closeAllLocked()
	l.mu.Unlock()

	l.hooks.unsubscribed(l.ownerID, closed)
	l.hooks.completed(l.ownerID)
	return true
}

func (l *Log) closeAllLocked() int {
	n := len(l.subs)
	for s := range l.subs {
		l.detachLocked(s)
	}
	return n
}

// detachLocked removes s and closes its queue. Caller holds l.mu.
func (l *Log) detachLocked(s *Subscription) {
	delete(l.subs, s)
	close(s.live)
}

// Subscribe replays every retained event with a sequence greater than cursor
// and, unless the log is complete, registers a live queue for later events.
// The snapshot and registration happen atomically.
func (l *Log) Subscribe(cursor int64) (*Subscription, error) {
	if cursor < 0 {
		cursor = 0
	}

	l.mu.Lock()
	if cursor < l.floorLocked() {
		floor := l.floorLocked()
		l.mu.Unlock()
		l.logger.Debug("cursor below retained window", "owner_id", l.ownerID, "cursor", cursor, "floor", floor)
		return nil, domain.ErrCursorExpired
	}

	s := &Subscription{log: l, backlog: l.sinceLocked(cursor)}
	if !l.completed {
		s.live = make(chan domain.Event, l.buffer)
		l.subs[s] = struct{}{}
	}
	live := s.live != nil
	l.mu.Unlock()

	if live {
		l.hooks.subscribed(l.ownerID, cursor)
	}
	return s, nil
}

func (l *Log) unsubscribe(s *Subscription) {
	l.mu.Lock()
	_, ok := l.subs[s]
	if ok {
		l.detachLocked(s)
	}
	l.mu.Unlock()

	if ok {
		l.hooks.unsubscribed(l.ownerID, 1)
	}
}

// Since returns a snapshot of retained events with a sequence greater than cursor.
func (l *Log) Since(cursor int64) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cursor < l.floorLocked() {
		return nil, domain.ErrCursorExpired
	}
	return l.sinceLocked(cursor), nil
}

func (l *Log) sinceLocked(cursor int64) []domain.Event {
	if len(l.events) == 0 {
		return nil
	}
	// Sequences are contiguous, so the offset is arithmetic.
	first := l.events[0].Sequence
	idx := 0
	if cursor >= first {
		idx = int(cursor - first + 1)
	}
	if idx >= len(l.events) {
		return nil
	}
	return append([]domain.Event(nil), l.events[idx:]...)
}

// floorLocked is the smallest cursor that can still be served without a gap.
func (l *Log) floorLocked() int64 {
	if len(l.events) == 0 {
		return l.seq
	}
	return l.events[0].Sequence - 1
}

// Floor returns the smallest cursor that can be resumed from.
func (l *Log) Floor() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.floorLocked()
}

// Sequence returns the sequence of the most recent event, or 0.
func (l *Log) Sequence() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Completed reports whether Complete has been called.
func (l *Log) Completed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completed
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Subscribers returns the number of live subscribers.
func (l *Log) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
