// Package tools holds the tool registry used by sessions and the demo
// orchestrator, and the built-in tools the server ships with.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultPageSize is the number of tools returned per tools/list page.
const DefaultPageSize = 2

// Registry manages the available tools, preserving registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]server.ServerTool
	order []string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]server.ServerTool),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten in place.
func (r *Registry) Register(tool mcp.Tool, fn server.ToolHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[tool.Name]; !ok {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = server.ServerTool{Tool: tool, Handler: fn}
}

// Tools returns every registered tool in registration order.
func (r *Registry) Tools() []server.ServerTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]server.ServerTool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Lookup returns the definition of a tool.
func (r *Registry) Lookup(name string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t.Tool, ok
}

// List returns one page of tool definitions. The cursor is an opaque offset;
// an unparseable cursor starts from the beginning. next is empty on the last page.
func (r *Registry) List(cursor string, pageSize int) (page []mcp.Tool, next string) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	offset := 0
	if n, err := strconv.Atoi(cursor); err == nil && n > 0 {
		offset = n
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if offset >= len(r.order) {
		return []mcp.Tool{}, ""
	}
	end := min(offset+pageSize, len(r.order))
	page = make([]mcp.Tool, 0, end-offset)
	for _, name := range r.order[offset:end] {
		page = append(page, r.tools[name].Tool)
	}
	if end < len(r.order) {
		next = strconv.Itoa(end)
	}
	return page, next
}

// Call executes a tool with JSON object arguments. An unknown tool is a tool
// level error result, not a Go error.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown tool '%s'.", name)), nil
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return mcp.NewToolResultError("Arguments must be a JSON object."), nil
		}
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments
	return t.Handler(ctx, req)
}

// ResultText joins the text content of a tool result.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var lines []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			lines = append(lines, tc.Text)
		}
	}
	return strings.Join(lines, "\n")
}
