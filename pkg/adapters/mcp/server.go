// Package mcp exposes the engine as an MCP server: the built-in tools plus
// task management tools, over stdio or the MCP SSE transport.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	uimorn "github.com/venikman/ui-morn"
	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/task"
	"golang.org/x/sync/errgroup"
)

// TasksResourceURI lists every retained task.
const TasksResourceURI = "uimorn://tasks"

// TaskView is the structured result of get_task.
type TaskView struct {
	Summary         domain.TaskSummary `json:"summary" jsonschema_description:"Status and latest sequence of the task"`
	Events          []domain.Event     `json:"events" jsonschema_description:"Retained events after the requested cursor"`
	PendingApproval string             `json:"pendingApproval,omitempty" jsonschema_description:"Request id of the approval the task is waiting on"`
	PendingName     string             `json:"pendingName,omitempty" jsonschema_description:"What the pending approval is for"`
	PendingArgs     json.RawMessage    `json:"pendingArguments,omitempty" jsonschema_description:"Arguments awaiting approval, e.g. the proposed tool plan"`
}

// Engine is the subset of uimorn.Engine the MCP server drives.
type Engine interface {
	StartTask(ctx context.Context, msg domain.Message) (*task.Task, error)
	Task(id string) (*task.Task, bool)
	Tasks() []domain.TaskSummary
	CancelTask(id string) bool
	ResolveApproval(taskID string, decision domain.ToolApproval) error
	ServerTools() []server.ServerTool
}

var _ Engine = (*uimorn.Engine)(nil)

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("uimorn-mcp", strings.TrimSpace(uimorn.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer.AddTools(engine.ServerTools()...)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops it when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List retained tasks with their status and latest sequence."),
		mcp.WithReadOnlyHintAnnotation(true),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.engine.Tasks())
	})

	s.mcpServer.AddTool(mcp.NewTool("start_task",
		mcp.WithDescription("Start a task from a prompt. The task runs in the background; follow it with get_task."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("User prompt")),
		mcp.WithString("scenario", mcp.Description("markdown (default) or tools")),
	), s.handleStartTask)

	s.mcpServer.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Read a task's summary and the events after a cursor."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("cursor", mcp.Description("Sequence of the last event already seen (optional)")),
		mcp.WithOutputSchema[TaskView](),
	), mcp.NewStructuredToolHandler(s.handleGetTask))

	s.mcpServer.AddTool(mcp.NewTool("resolve_approval",
		mcp.WithDescription("Approve or deny the tool plan a task is waiting on."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("request_id", mcp.Required(), mcp.Description("Approval request id")),
		mcp.WithBoolean("approved", mcp.Required(), mcp.Description("Decision")),
		mcp.WithString("reason", mcp.Description("Optional reason")),
	), s.handleResolveApproval)

	s.mcpServer.AddTool(mcp.NewTool("cancel_task",
		mcp.WithDescription("Cancel a running task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithDestructiveHintAnnotation(true),
	), s.handleCancelTask)
}

func (s *Server) handleStartTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msg := domain.Message{Role: "user", Parts: []domain.Part{domain.TextPart(prompt)}}
	if name := request.GetString("scenario", ""); name != "" {
		raw, _ := json.Marshal(name)
		msg.Metadata = map[string]json.RawMessage{"scenario": raw}
	}
	t, err := s.engine.StartTask(ctx, msg)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("task not started", err), nil
	}
	return jsonResult(map[string]string{"taskId": t.ID(), "scenario": t.Scenario()})
}

func (s *Server) handleGetTask(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TaskView, error) {
	id, _ := args["task_id"].(string)
	t, ok := s.engine.Task(id)
	if !ok {
		return TaskView{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	cursor, _ := args["cursor"].(string)
	events, err := t.Log().Since(domain.ParseCursor(cursor))
	if err != nil {
		return TaskView{}, fmt.Errorf("read events: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	view := TaskView{Summary: t.Summary(), Events: events}
	if p, ok := t.PendingApproval(); ok {
		view.PendingApproval = p.ID
		view.PendingName = p.Name
		view.PendingArgs = p.Arguments
	}
	return view, nil
}

func (s *Server) handleResolveApproval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	requestID, err := request.RequireString("request_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	decision := domain.ToolApproval{
		RequestID: requestID,
		Approved:  request.GetBool("approved", false),
		Reason:    request.GetString("reason", ""),
	}
	if err := s.engine.ResolveApproval(taskID, decision); err != nil {
		return mcp.NewToolResultErrorFromErr("approval not recorded", err), nil
	}
	return mcp.NewToolResultText("Approval received."), nil
}

func (s *Server) handleCancelTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := request.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, ok := s.engine.Task(taskID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Task %s not found.", taskID)), nil
	}
	if !s.engine.CancelTask(taskID) {
		return mcp.NewToolResultError(fmt.Sprintf("Task %s is not running.", taskID)), nil
	}
	return mcp.NewToolResultText("Cancellation requested."), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(TasksResourceURI, "Retained tasks",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		raw, err := json.Marshal(s.engine.Tasks())
		if err != nil {
			return nil, fmt.Errorf("encode tasks: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      TasksResourceURI,
				MIMEType: "application/json",
				Text:     string(raw),
			},
		}, nil
	})
}
