package uimorn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/approval"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/eventlog"
	"github.com/venikman/ui-morn/pkg/observability"
	"github.com/venikman/ui-morn/pkg/ports"
	"github.com/venikman/ui-morn/pkg/scenario"
	"github.com/venikman/ui-morn/pkg/session"
	"github.com/venikman/ui-morn/pkg/supervisor"
	"github.com/venikman/ui-morn/pkg/task"
	"github.com/venikman/ui-morn/pkg/tools"
)

// Version is the release of this build. It is overridden at link time.
var Version = "0.1.0"

// ErrAuditUnavailable is returned by AuditEvents when no mirror is configured.
var ErrAuditUnavailable = errors.New("audit mirror not configured")

// Engine is the high-level entry point for ui-morn.
// It wires the task and session stores, the tool registry, the supervisor
// and the optional metrics and mirror, and exposes the operations transports need.
type Engine struct {
	tasks        *task.Store
	sessions     *session.Manager
	tools        *tools.Registry
	toolset      meteredTools
	supervisor   *supervisor.Supervisor
	orchestrator task.Orchestrator
	mirror       ports.MirrorStore
	metrics      *observability.Metrics
	gatherer     prometheus.Gatherer

	buffer      int
	maxEvents   int
	ttl         time.Duration
	maxOwners   int
	builtinOpts []tools.BuiltinOption
	runnerOpts  []scenario.Option
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBuffer sets the per-subscriber queue size of every log.
func WithBuffer(n int) Option {
	return func(e *Engine) {
		e.buffer = n
	}
}

// WithRetention bounds memory: maxEvents per log (cursor floor), and owners
// evicted ttl after creation with at most maxOwners of each flavor. Zero
// values leave the matching dimension unbounded.
func WithRetention(maxEvents int, ttl time.Duration, maxOwners int) Option {
	return func(e *Engine) {
		e.maxEvents = maxEvents
		e.ttl = ttl
		e.maxOwners = maxOwners
	}
}

// WithMirror copies every appended event to store and serves AuditEvents from it.
func WithMirror(store ports.MirrorStore) Option {
	return func(e *Engine) {
		e.mirror = store
	}
}

// WithMetrics registers the engine collectors on reg.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.metrics = observability.MustNewMetrics(reg)
			e.gatherer = reg
		}
	}
}

// WithBuiltinOptions configures the built-in tools.
func WithBuiltinOptions(opts ...tools.BuiltinOption) Option {
	return func(e *Engine) {
		e.builtinOpts = append(e.builtinOpts, opts...)
	}
}

// WithScenarioOptions configures the default orchestrator.
func WithScenarioOptions(opts ...scenario.Option) Option {
	return func(e *Engine) {
		e.runnerOpts = append(e.runnerOpts, opts...)
	}
}

// WithOrchestrator replaces the default scenario runner.
func WithOrchestrator(o task.Orchestrator) Option {
	return func(e *Engine) {
		e.orchestrator = o
	}
}

// New initializes an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{buffer: eventlog.DefaultBuffer}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}

	e.tools = tools.NewRegistry()
	tools.NewBuiltin(e.builtinOpts...).Register(e.tools)
	e.toolset = meteredTools{reg: e.tools, metrics: e.metrics}

	taskOpts := []task.StoreOption{
		task.WithLogOptions(e.logOptions(observability.OwnerTask)...),
		task.WithApprovalOptions(approval.WithHooks(e.metrics.ApprovalHooks())),
		task.WithLogger(e.logger),
	}
	sessionOpts := []session.Option{
		session.WithLogOptions(e.logOptions(observability.OwnerSession)...),
		session.WithLogger(e.logger),
	}
	if e.ttl > 0 || e.maxOwners > 0 {
		taskOpts = append(taskOpts, task.WithTTL(e.maxOwners, e.ttl), task.WithEvictHook(e.evict))
		sessionOpts = append(sessionOpts, session.WithTTL(e.maxOwners, e.ttl))
	}
	e.tasks = task.NewStore(taskOpts...)
	e.sessions = session.NewManager(sessionOpts...)

	e.supervisor = supervisor.New(
		supervisor.WithHooks(e.metrics.SupervisorHooks()),
		supervisor.WithLogger(e.logger),
	)
	if e.orchestrator == nil {
		runnerOpts := append([]scenario.Option{scenario.WithLogger(e.logger)}, e.runnerOpts...)
		e.orchestrator = scenario.NewRunner(e.toolset, runnerOpts...)
	}
	return e
}

// evict stops the worker of a task dropped by retention. The supervisor
// records the canceled event and completes the log; a task with no worker is
// completed directly.
func (e *Engine) evict(t *task.Task) {
	if e.supervisor.CancelCause(t.ID(), supervisor.ErrEvicted) {
		return
	}
	t.Complete()
}

func (e *Engine) logOptions(ownerType string) []eventlog.Option {
	opts := []eventlog.Option{
		eventlog.WithBuffer(e.buffer),
		eventlog.WithHooks(e.metrics.LogHooks(ownerType)),
	}
	if e.maxEvents > 0 {
		opts = append(opts, eventlog.WithRetention(eventlog.KeepLast(e.maxEvents)))
	}
	if e.mirror != nil {
		opts = append(opts, eventlog.WithSink(e.mirror))
	}
	return opts
}

// StartTask creates a task for msg and runs the orchestrator on it under
// supervision. The run is detached from ctx cancellation.
func (e *Engine) StartTask(ctx context.Context, msg domain.Message) (*task.Task, error) {
	name := scenario.Normalize(msg.MetadataString("scenario", scenario.Markdown))
	t := e.tasks.Create(name)
	err := e.supervisor.Start(ctx, t, func(ctx context.Context) error {
		return e.orchestrator.Run(ctx, t, msg)
	})
	if err != nil {
		_, _ = t.Append(domain.KindError, domain.TextPart("Error: "+err.Error()))
		t.Complete()
		return nil, fmt.Errorf("start task %s: %w", t.ID(), err)
	}
	e.logger.Info("task started", "task_id", t.ID(), "scenario", name)
	return t, nil
}

// Task looks up a task.
func (e *Engine) Task(id string) (*task.Task, bool) {
	return e.tasks.Get(id)
}

// Tasks lists every retained task.
func (e *Engine) Tasks() []domain.TaskSummary {
	return e.tasks.Summaries()
}

// CancelTask stops a running task. It reports false when no worker is running for id.
func (e *Engine) CancelTask(id string) bool {
	return e.supervisor.Cancel(id)
}

// ResolveApproval settles the pending approval of a task.
func (e *Engine) ResolveApproval(taskID string, decision domain.ToolApproval) error {
	t, ok := e.tasks.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	if !t.ResolveApproval(decision.RequestID, decision.Approved, decision.Reason) {
		return fmt.Errorf("%w: %s", domain.ErrApprovalNotFound, decision.RequestID)
	}
	e.logger.Info("approval resolved", "task_id", taskID, "request_id", decision.RequestID, "approved", decision.Approved)
	return nil
}

// Session returns the session for id, creating it (with a server-assigned id when blank).
func (e *Engine) Session(id string) (*session.Session, bool) {
	return e.sessions.GetOrCreate(id)
}

// LookupSession returns an existing session.
func (e *Engine) LookupSession(id string) (*session.Session, bool) {
	return e.sessions.Get(id)
}

// ListTools returns one page of tool definitions.
func (e *Engine) ListTools(cursor string, pageSize int) ([]mcp.Tool, string) {
	return e.toolset.List(cursor, pageSize)
}

// CallTool runs a tool and records the outcome.
func (e *Engine) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	return e.toolset.Call(ctx, name, args)
}

// Invoker returns the tool invoker used for session calls.
func (e *Engine) Invoker() session.Invoker {
	return e.toolset
}

// ServerTools returns the tool definitions paired with metered handlers.
func (e *Engine) ServerTools() []server.ServerTool {
	defs := e.tools.Tools()
	out := make([]server.ServerTool, 0, len(defs))
	for _, st := range defs {
		handler := st.Handler
		name := st.Tool.Name
		out = append(out, server.ServerTool{
			Tool: st.Tool,
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				res, err := handler(ctx, req)
				e.metrics.ObserveToolCall(name, err != nil || (res != nil && res.IsError))
				return res, err
			},
		})
	}
	return out
}

// AuditEvents reads the mirrored copy of an owner's events.
func (e *Engine) AuditEvents(ctx context.Context, ownerID string) ([]domain.Event, error) {
	if e.mirror == nil {
		return nil, ErrAuditUnavailable
	}
	return e.mirror.Events(ctx, ownerID)
}

// Gatherer exposes the metrics registry, or nil when metrics are disabled.
func (e *Engine) Gatherer() prometheus.Gatherer {
	return e.gatherer
}

// ActiveWorkers returns the number of running orchestrations.
func (e *Engine) ActiveWorkers() int {
	return e.supervisor.Active()
}

// Shutdown cancels running orchestrations and waits for them to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.supervisor.Shutdown(ctx)
}

type meteredTools struct {
	reg     *tools.Registry
	metrics *observability.Metrics
}

func (m meteredTools) List(cursor string, pageSize int) ([]mcp.Tool, string) {
	return m.reg.List(cursor, pageSize)
}

func (m meteredTools) Call(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	res, err := m.reg.Call(ctx, name, args)
	m.metrics.ObserveToolCall(name, err != nil || (res != nil && res.IsError))
	return res, err
}
