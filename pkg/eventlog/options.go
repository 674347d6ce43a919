package eventlog

import (
	"log/slog"
	"time"

	"github.com/venikman/ui-morn/pkg/ports"
)

// DefaultBuffer is the per-subscriber queue capacity.
const DefaultBuffer = 256

// Option configures a Log.
type Option func(*Log)

// WithBuffer sets the capacity of each subscriber's live queue.
func WithBuffer(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.buffer = n
		}
	}
}

// WithRetention sets the retention strategy.
func WithRetention(r Retention) Option {
	return func(l *Log) {
		if r != nil {
			l.retention = r
		}
	}
}

// WithHooks installs observation callbacks.
func WithHooks(h Hooks) Option {
	return func(l *Log) {
		l.hooks = h
	}
}

// WithSink mirrors every appended event to sink.
func WithSink(sink ports.EventSink) Option {
	return func(l *Log) {
		l.sink = sink
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}
