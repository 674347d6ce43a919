package session

import (
	"log/slog"
	"time"

	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/eventlog"
	"github.com/venikman/ui-morn/pkg/registry"
)

// IDPrefix prefixes every server-assigned session id.
const IDPrefix = "session"

// Manager creates and looks up sessions.
type Manager struct {
	reg *registry.Registry[*Session]

	logOpts []eventlog.Option
	regOpts []registry.Option[*Session]
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogOptions applies opts to every session's event log.
func WithLogOptions(opts ...eventlog.Option) Option {
	return func(m *Manager) { m.logOpts = append(m.logOpts, opts...) }
}

// WithTTL evicts sessions ttl after creation and keeps at most maxSessions.
func WithTTL(maxSessions int, ttl time.Duration) Option {
	return func(m *Manager) {
		m.regOpts = append(m.regOpts,
			registry.WithEvictCallback(func(id string, s *Session) {
				// Ends any live listeners of the evicted log.
				s.log.Complete()
				m.logger.Debug("session evicted", "session_id", id)
			}),
			registry.WithTTL[*Session](maxSessions, ttl),
		)
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates an empty session manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reg = registry.New(IDPrefix, m.regOpts...)
	return m
}

// GetOrCreate returns the session for id, creating it when unknown.
// A blank id gets a server-assigned one; read it back with Session.ID.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	s, created := m.reg.GetOrCreate(id, m.newSession)
	if created {
		m.logger.Debug("session created", "session_id", s.id)
	}
	return s, created
}

// Get looks up a session. A missing id is a normal negative result.
func (m *Manager) Get(id string) (*Session, bool) {
	return m.reg.Get(id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int { return m.reg.Len() }

func (m *Manager) newSession(id string) *Session {
	opts := append([]eventlog.Option{eventlog.WithLogger(m.logger.With("session_id", id))}, m.logOpts...)
	return &Session{
		id:        id,
		createdAt: m.now(),
		log:       eventlog.New(id, opts...),
	}
}
