package domain

import "time"

// Task event kinds.
const (
	KindWorking       = "working"
	KindInputRequired = "input-required"
	KindCompleted     = "completed"
	KindError         = "error"
	KindCanceled      = "canceled"
)

// Session event kinds, one triple per tool invocation.
const (
	KindToolStarted = "tool.started"
	KindToolResult  = "tool.result"
	KindToolDone    = "tool.done"
)

// Event is one immutable record of an owner's log.
// Sequence starts at 1 and has no gaps within an owner.
type Event struct {
	OwnerID   string    `json:"ownerId"`
	Sequence  int64     `json:"sequence"`
	Kind      string    `json:"kind"`
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp"`
}

// IsTerminal reports whether kind ends a task.
func IsTerminal(kind string) bool {
	switch kind {
	case KindCompleted, KindError, KindCanceled:
		return true
	}
	return false
}

// Status values reported by TaskSummary.
const (
	StatusWorking   = "working"
	StatusCompleted = "completed"
)

// TaskSummary is the lightweight view of a task returned by lookups.
type TaskSummary struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	Sequence int64  `json:"sequence"`
}

// Decision is the outcome of an approval request.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}
