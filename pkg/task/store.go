package task

import (
	"log/slog"
	"slices"
	"time"

	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/approval"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/eventlog"
	"github.com/venikman/ui-morn/pkg/registry"
)

// IDPrefix prefixes every task id.
const IDPrefix = "task"

// Store creates and looks up tasks.
type Store struct {
	reg *registry.Registry[*Task]

	logOpts      []eventlog.Option
	approvalOpts []approval.Option
	regOpts      []registry.Option[*Task]
	onEvict      func(*Task)
	now          func() time.Time
	logger       *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogOptions applies opts to every task's event log.
func WithLogOptions(opts ...eventlog.Option) StoreOption {
	return func(s *Store) { s.logOpts = append(s.logOpts, opts...) }
}

// WithApprovalOptions applies opts to every task's approval barrier.
func WithApprovalOptions(opts ...approval.Option) StoreOption {
	return func(s *Store) { s.approvalOpts = append(s.approvalOpts, opts...) }
}

// WithTTL evicts tasks ttl after creation and keeps at most maxTasks.
// Evicted tasks are ended so their streams finish: by the hook set with
// WithEvictHook, or by completing the log when there is none.
func WithTTL(maxTasks int, ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.regOpts = append(s.regOpts,
			registry.WithEvictCallback(func(id string, t *Task) {
				if t.Completed() {
					return
				}
				s.logger.Info("evicting live task", "task_id", id)
				if s.onEvict != nil {
					s.onEvict(t)
					return
				}
				t.Complete()
			}),
			registry.WithTTL[*Task](maxTasks, ttl),
		)
	}
}

// WithEvictHook replaces the default completion of live evicted tasks.
// fn runs under the registry's eviction path and must not block; it is
// responsible for the task eventually completing.
func WithEvictHook(fn func(*Task)) StoreOption {
	return func(s *Store) { s.onEvict = fn }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reg = registry.New(IDPrefix, s.regOpts...)
	return s
}

// Create allocates a new task for scenario.
func (s *Store) Create(scenario string) *Task {
	t := s.reg.Create(func(id string) *Task {
		logOpts := append([]eventlog.Option{eventlog.WithLogger(s.logger.With("task_id", id))}, s.logOpts...)
		return &Task{
			id:        id,
			scenario:  scenario,
			createdAt: s.now(),
			log:       eventlog.New(id, logOpts...),
			approvals: approval.New(s.approvalOpts...),
		}
	})
	s.logger.Debug("task created", "task_id", t.id, "scenario", scenario)
	return t
}

// Get looks up a task. A missing id is a normal negative result.
func (s *Store) Get(id string) (*Task, bool) {
	return s.reg.Get(id)
}

// Len returns the number of stored tasks.
func (s *Store) Len() int { return s.reg.Len() }

// Summaries lists every task, oldest first.
func (s *Store) Summaries() []domain.TaskSummary {
	tasks := s.reg.Values()
	slices.SortFunc(tasks, func(a, b *Task) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	out := make([]domain.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Summary())
	}
	return out
}
