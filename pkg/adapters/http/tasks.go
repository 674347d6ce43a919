package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	uimorn "github.com/venikman/ui-morn"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/sse"
	"github.com/venikman/ui-morn/pkg/task"
)

// StreamMessageRequest is the body of POST /v1/message:stream.
type StreamMessageRequest struct {
	Message *domain.Message `json:"message"`
}

// SendMessageRequest is the body of POST /v1/message:send.
type SendMessageRequest struct {
	TaskID  string          `json:"taskId,omitempty"`
	Message *domain.Message `json:"message"`
}

// SendMessageResponse acknowledges a message sent to an existing task.
type SendMessageResponse struct {
	TaskID  string         `json:"taskId"`
	Message domain.Message `json:"message"`
}

func decodeMessage(w http.ResponseWriter, r *http.Request, dst any, msg func() *domain.Message) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil || msg() == nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "Missing request body.")
		return false
	}
	if err := msg().Validate(); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid message parts", err.Error())
		return false
	}
	if err := msg().Sanitize(domain.MaxTextBytes); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrInputTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeProblem(w, status, "Invalid message parts", err.Error())
		return false
	}
	return true
}

// StreamMessage handles POST /v1/message:stream: it starts a task and
// streams it. The worker is not tied to this request.
func (s *Server) StreamMessage(w http.ResponseWriter, r *http.Request) {
	var body StreamMessageRequest
	if !decodeMessage(w, r, &body, func() *domain.Message { return body.Message }) {
		return
	}

	t, err := s.engine.StartTask(r.Context(), *body.Message)
	if err != nil {
		s.logger.Error("task start failed", "error", err)
		writeProblem(w, http.StatusServiceUnavailable, "Task not started", err.Error())
		return
	}
	s.streamTask(w, r, t)
}

// SendMessage handles POST /v1/message:send. Existing tasks accept a
// toolApproval data part that decides their pending approval.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body SendMessageRequest
	if !decodeMessage(w, r, &body, func() *domain.Message { return body.Message }) {
		return
	}
	if strings.TrimSpace(body.TaskID) == "" {
		writeProblem(w, http.StatusBadRequest, "Unsupported request", "Only tool approvals for an existing task are accepted.")
		return
	}
	if _, ok := s.engine.Task(body.TaskID); !ok {
		taskNotFound(w)
		return
	}

	decision, ok := body.Message.FindToolApproval()
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Unsupported request", "Only tool approvals are accepted for existing tasks.")
		return
	}
	if !s.resolve(w, body.TaskID, decision) {
		return
	}
	writeJSON(w, http.StatusOK, SendMessageResponse{
		TaskID: body.TaskID,
		Message: domain.Message{
			Role:  "agent",
			Parts: []domain.Part{domain.TextPart("Approval received.")},
		},
	})
}

// Approve handles POST /v1/tasks/{taskId}/approval.
func (s *Server) Approve(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	var decision domain.ToolApproval
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid approval", "Body must be {requestId, approved, reason?}.")
		return
	}
	if strings.TrimSpace(decision.RequestID) == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid approval", "requestId is required.")
		return
	}
	if !s.resolve(w, taskID, decision) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"taskId":    taskID,
		"requestId": decision.RequestID,
		"approved":  decision.Approved,
	})
}

func (s *Server) resolve(w http.ResponseWriter, taskID string, decision domain.ToolApproval) bool {
	err := s.engine.ResolveApproval(taskID, decision)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrTaskNotFound):
		taskNotFound(w)
	case errors.Is(err, domain.ErrApprovalNotFound):
		writeProblem(w, http.StatusConflict, "Approval not pending",
			"No approval with id "+decision.RequestID+" is waiting for a decision.")
	default:
		s.logger.Error("approval failed", "task_id", taskID, "error", err)
		writeProblem(w, http.StatusInternalServerError, "Approval failed", err.Error())
	}
	return false
}

// ListTasks handles GET /v1/tasks.
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	summaries := s.engine.Tasks()
	if summaries == nil {
		summaries = []domain.TaskSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// splitRef separates "id:action".
func splitRef(ref string) (id, action string) {
	id, action, _ = strings.Cut(ref, ":")
	return id, action
}

// GetTask handles GET /v1/tasks/{taskId} and GET /v1/tasks/{taskId}:subscribe.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	id, action := splitRef(chi.URLParam(r, "taskId"))
	t, ok := s.engine.Task(id)
	if !ok {
		taskNotFound(w)
		return
	}
	switch action {
	case "":
		writeJSON(w, http.StatusOK, t.Summary())
	case "subscribe":
		s.streamTask(w, r, t)
	default:
		writeProblem(w, http.StatusNotFound, "Unknown action", "Supported actions are :subscribe and :cancel.")
	}
}

// PostTask handles POST /v1/tasks/{taskId}:subscribe and :cancel.
func (s *Server) PostTask(w http.ResponseWriter, r *http.Request) {
	id, action := splitRef(chi.URLParam(r, "taskId"))
	t, ok := s.engine.Task(id)
	if !ok {
		taskNotFound(w)
		return
	}
	switch action {
	case "subscribe":
		s.streamTask(w, r, t)
	case "cancel":
		if !s.engine.CancelTask(id) {
			writeProblem(w, http.StatusConflict, "Task not running", "The task has already finished.")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"taskId": id, "status": "canceling"})
	default:
		writeProblem(w, http.StatusNotFound, "Unknown action", "Supported actions are :subscribe and :cancel.")
	}
}

// SubscribeTask handles GET /v1/tasks/{taskId}/events.
func (s *Server) SubscribeTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.engine.Task(chi.URLParam(r, "taskId"))
	if !ok {
		taskNotFound(w)
		return
	}
	s.streamTask(w, r, t)
}

func (s *Server) streamTask(w http.ResponseWriter, r *http.Request, t *task.Task) {
	cursor := cursorFrom(r)
	sub, err := t.Subscribe(cursor)
	if errors.Is(err, domain.ErrCursorExpired) {
		cursorExpired(w, t.Log())
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Subscribe failed", err.Error())
		return
	}
	defer sub.Cancel()

	sw, err := sse.NewWriter(w, http.Header{HeaderTaskID: []string{t.ID()}})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", err.Error())
		return
	}
	logger := s.logger.With("task_id", t.ID(), "cursor", cursor)
	logger.Debug("task stream opened")
	s.pumpSSE(r.Context(), sw, sub, taskFrame, logger)
}

// SubscribeTaskWS handles GET /v1/tasks/{taskId}/ws.
func (s *Server) SubscribeTaskWS(w http.ResponseWriter, r *http.Request) {
	t, ok := s.engine.Task(chi.URLParam(r, "taskId"))
	if !ok {
		taskNotFound(w)
		return
	}
	sub, err := t.Subscribe(cursorFrom(r))
	if errors.Is(err, domain.ErrCursorExpired) {
		cursorExpired(w, t.Log())
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Subscribe failed", err.Error())
		return
	}
	defer sub.Cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	s.pumpWS(ctx, conn, sub, s.logger.With("task_id", t.ID()))
}

// GetAudit handles GET /v1/audit/{ownerId}.
func (s *Server) GetAudit(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerId")
	events, err := s.engine.AuditEvents(r.Context(), ownerID)
	if errors.Is(err, uimorn.ErrAuditUnavailable) {
		writeProblem(w, http.StatusServiceUnavailable, "Audit unavailable", err.Error())
		return
	}
	if err != nil {
		s.logger.Error("audit read failed", "owner_id", ownerID, "error", err)
		writeProblem(w, http.StatusBadGateway, "Audit read failed", err.Error())
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
