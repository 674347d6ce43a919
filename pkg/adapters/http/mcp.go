package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/session"
	"github.com/venikman/ui-morn/pkg/sse"
)

// ToolsPageSize is the number of tools returned per tools/list page.
const ToolsPageSize = 2

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type toolsListResult struct {
	Tools      []mcp.Tool `json:"tools"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

type toolCallResult struct {
	IsError bool          `json:"isError"`
	Content []mcp.Content `json:"content"`
}

func rpcID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, msg string) {
	writeJSON(w, status, rpcResponse{JSONRPC: "2.0", ID: rpcID(id), Error: &rpcError{Code: code, Message: msg}})
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: rpcID(id), Result: result})
}

// wantsStream reports whether the client asked for a streamed tools/call.
func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
		strings.EqualFold(r.Header.Get(HeaderStream), "true")
}

// sessionFrame writes the JSON-RPC envelope carried by a session event as the frame data.
func sessionFrame(ev domain.Event) (sse.Frame, error) {
	f := sse.Frame{ID: strconv.FormatInt(ev.Sequence, 10), Event: ev.Kind}
	if len(ev.Parts) > 0 && ev.Parts[0].Data != nil {
		f.Data = ev.Parts[0].Data.Payload
		return f, nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return sse.Frame{}, err
	}
	f.Data = data
	return f, nil
}

// PostMCP handles POST /mcp.
func (s *Server) PostMCP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, codeParseError, "Invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		writeRPCError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "Invalid JSON-RPC version")
		return
	}

	switch req.Method {
	case "tools/list":
		s.toolsList(w, req)
	case "tools/call":
		s.toolsCall(w, r, req)
	default:
		writeRPCError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "Method not found")
	}
}

func (s *Server) toolsList(w http.ResponseWriter, req rpcRequest) {
	var params struct {
		Cursor string `json:"cursor"`
	}
	if len(req.Params) > 0 && !bytes.Equal(bytes.TrimSpace(req.Params), []byte("null")) {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeRPCError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "Invalid params")
			return
		}
	}
	page, next := s.engine.ListTools(params.Cursor, ToolsPageSize)
	if page == nil {
		page = []mcp.Tool{}
	}
	writeRPCResult(w, req.ID, toolsListResult{Tools: page, NextCursor: next})
}

func parseCall(req rpcRequest) (session.Call, string) {
	var params struct {
		Name      *string         `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if len(req.Params) == 0 || json.Unmarshal(req.Params, &params) != nil {
		return session.Call{}, "Invalid params"
	}
	if params.Name == nil || strings.TrimSpace(*params.Name) == "" {
		return session.Call{}, "Missing tool name"
	}
	args := bytes.TrimSpace(params.Arguments)
	if len(args) == 0 || args[0] != '{' {
		return session.Call{}, "Missing tool arguments"
	}
	return session.Call{RPCID: rpcID(req.ID), Name: *params.Name, Arguments: args}, ""
}

func (s *Server) toolsCall(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	call, problem := parseCall(req)
	if problem != "" {
		writeRPCError(w, http.StatusBadRequest, req.ID, codeInvalidParams, problem)
		return
	}

	if !wantsStream(r) {
		res, err := s.engine.CallTool(r.Context(), call.Name, call.Arguments)
		if err != nil {
			res = mcp.NewToolResultError(err.Error())
		}
		writeRPCResult(w, req.ID, toolCallResult{IsError: res.IsError, Content: res.Content})
		return
	}

	sess, _ := s.engine.Session(strings.TrimSpace(r.Header.Get(HeaderSessionID)))
	cursor := cursorFrom(r)
	logger := s.logger.With("session_id", sess.ID(), "tool", call.Name)

	replay, replayOnly, err := sess.Resume(cursor)
	if errors.Is(err, domain.ErrCursorExpired) {
		cursorExpired(w, sess.Log())
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Resume failed", err.Error())
		return
	}

	sw, err := sse.NewWriter(w, http.Header{HeaderSessionID: []string{sess.ID()}})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", err.Error())
		return
	}
	emit := func(ev domain.Event) error {
		f, err := sessionFrame(ev)
		if err != nil {
			return err
		}
		return sw.WriteFrame(f)
	}

	if replayOnly {
		logger.Debug("replaying session", "cursor", cursor, "events", len(replay))
		for _, ev := range replay {
			if err := emit(ev); err != nil {
				return
			}
		}
		return
	}
	if err := sess.Invoke(r.Context(), call, s.engine.Invoker(), emit); err != nil {
		logger.Debug("session stream ended early", "error", err)
	}
}

// GetMCP handles GET /mcp: it follows the session's stream live.
func (s *Server) GetMCP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(HeaderSessionID))
	sess, ok := s.engine.LookupSession(id)
	if id == "" || !ok {
		writeProblem(w, http.StatusNotFound, "Session not found", "Send Mcp-Session-Id of an existing session.")
		return
	}
	sub, err := sess.Subscribe(cursorFrom(r))
	if errors.Is(err, domain.ErrCursorExpired) {
		cursorExpired(w, sess.Log())
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Subscribe failed", err.Error())
		return
	}
	defer sub.Cancel()

	sw, err := sse.NewWriter(w, http.Header{HeaderSessionID: []string{sess.ID()}})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", err.Error())
		return
	}
	s.pumpSSE(r.Context(), sw, sub, sessionFrame, s.logger.With("session_id", sess.ID()))
}
