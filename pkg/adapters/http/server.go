// Package http exposes the engine over HTTP: task streams and approvals under
// /v1, the MCP JSON-RPC endpoint under /mcp, and the operational endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	uimorn "github.com/venikman/ui-morn"
	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/session"
	"github.com/venikman/ui-morn/pkg/task"
)

// Engine is the subset of uimorn.Engine the transport drives.
type Engine interface {
	StartTask(ctx context.Context, msg domain.Message) (*task.Task, error)
	Task(id string) (*task.Task, bool)
	Tasks() []domain.TaskSummary
	CancelTask(id string) bool
	ResolveApproval(taskID string, decision domain.ToolApproval) error

	Session(id string) (*session.Session, bool)
	LookupSession(id string) (*session.Session, bool)
	ListTools(cursor string, pageSize int) ([]mcp.Tool, string)
	CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error)
	Invoker() session.Invoker

	AuditEvents(ctx context.Context, ownerID string) ([]domain.Event, error)
}

var _ Engine = (*uimorn.Engine)(nil)

// Header names exchanged with clients.
const (
	HeaderLastEventID = "Last-Event-ID"
	HeaderSessionID   = "Mcp-Session-Id"
	HeaderStream      = "X-MCP-Stream"
	HeaderTaskID      = "X-Task-Id"
)

// Server holds the HTTP handlers.
type Server struct {
	engine    Engine
	heartbeat time.Duration
	gatherer  prometheus.Gatherer
	origins   []string
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithHeartbeat sets the interval of keep-alive comments on open streams. Zero disables them.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// WithGatherer serves /metrics from g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithAllowedOrigins restricts CORS to the given origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the handler set for engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		heartbeat: 15 * time.Second,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/.well-known/agent-card.json", s.GetAgentCard)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/message:stream", s.StreamMessage)
		r.Post("/message:send", s.SendMessage)
		r.Get("/tasks", s.ListTasks)
		r.Get("/tasks/{taskId}", s.GetTask)
		r.Post("/tasks/{taskId}", s.PostTask)
		r.Get("/tasks/{taskId}/events", s.SubscribeTask)
		r.Get("/tasks/{taskId}/ws", s.SubscribeTaskWS)
		r.Post("/tasks/{taskId}/approval", s.Approve)
		r.Get("/audit/{ownerId}", s.GetAudit)
	})

	r.Post("/mcp", s.PostMCP)
	r.Get("/mcp", s.GetMCP)
	return r
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.origins) == 0 || origin == "" {
		return true
	}
	for _, o := range s.origins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.originAllowed(origin) {
			if len(s.origins) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Last-Event-ID, Mcp-Session-Id, X-MCP-Stream")
			w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id, X-Task-Id")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	} else if err != nil {
		s.logger.Error("openapi spec unavailable", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "uimorn-http",
		"version":     strings.TrimSpace(uimorn.Version),
		"api_version": apiVersion,
	})
}

// GetAgentCard describes the agent's endpoints and capabilities.
func (s *Server) GetAgentCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "ui-morn",
		"version": strings.TrimSpace(uimorn.Version),
		"capabilities": map[string]any{
			"streaming": map[string]bool{"sse": true, "websocket": true},
			"approvals": true,
		},
		"endpoints": map[string]string{
			"messageSend":   "/v1/message:send",
			"messageStream": "/v1/message:stream",
			"tasks":         "/v1/tasks",
			"mcp":           "/mcp",
		},
	})
}
