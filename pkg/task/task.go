// Package task implements the task owner: an event log with completion
// semantics plus an approval barrier, and the store that allocates tasks.
package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/venikman/ui-morn/pkg/approval"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/eventlog"
)

// Task is one unit of orchestrated work and the log of its progress.
type Task struct {
	id        string
	scenario  string
	createdAt time.Time

	log       *eventlog.Log
	approvals *approval.Barrier
}

// Orchestrator drives a task by appending events and, when needed, pausing on
// an approval. Run returns when the work is finished; the caller completes the task.
type Orchestrator interface {
	Run(ctx context.Context, t *Task, msg domain.Message) error
}

// OrchestratorFunc adapts a function to Orchestrator.
type OrchestratorFunc func(ctx context.Context, t *Task, msg domain.Message) error

// Run calls f.
func (f OrchestratorFunc) Run(ctx context.Context, t *Task, msg domain.Message) error {
	return f(ctx, t, msg)
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// Scenario returns the scenario name the task was created for.
func (t *Task) Scenario() string { return t.scenario }

// CreatedAt returns when the task was created.
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// Log exposes the underlying event log.
func (t *Task) Log() *eventlog.Log { return t.log }

// Append records an event. Terminal kinds complete the task atomically.
func (t *Task) Append(kind string, parts ...domain.Part) (domain.Event, error) {
	if domain.IsTerminal(kind) {
		return t.log.AppendFinal(kind, parts...)
	}
	return t.log.Append(kind, parts...)
}

// Complete ends the task. It is idempotent.
func (t *Task) Complete() bool { return t.log.Complete() }

// Completed reports whether the task has ended.
func (t *Task) Completed() bool { return t.log.Completed() }

// Subscribe opens a replay-then-live subscription after cursor.
func (t *Task) Subscribe(cursor int64) (*eventlog.Subscription, error) {
	return t.log.Subscribe(cursor)
}

// RequestApproval opens the task's approval slot for args.
func (t *Task) RequestApproval(name string, args json.RawMessage) (*approval.Pending, error) {
	return t.approvals.Request(name, args)
}

// AwaitApproval blocks until p is decided or ctx ends.
func (t *Task) AwaitApproval(ctx context.Context, p *approval.Pending) (domain.Decision, error) {
	return t.approvals.Await(ctx, p)
}

// ResolveApproval settles the pending request with the given id.
func (t *Task) ResolveApproval(id string, approved bool, reason string) bool {
	return t.approvals.Resolve(id, approved, reason)
}

// PendingApproval returns the outstanding request, if any.
func (t *Task) PendingApproval() (approval.Pending, bool) {
	return t.approvals.Pending()
}

// Summary returns the task's current status and head sequence.
func (t *Task) Summary() domain.TaskSummary {
	status := domain.StatusWorking
	if t.log.Completed() {
		status = domain.StatusCompleted
	}
	return domain.TaskSummary{
		TaskID:   t.id,
		Status:   status,
		Sequence: t.log.Sequence(),
	}
}
