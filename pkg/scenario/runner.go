// Package scenario contains the demo orchestrator that drives tasks created
// by the HTTP transport: a chunked markdown stream and an approval gated tool plan.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/task"
)

// Scenario names accepted in message metadata.
const (
	Markdown = "markdown"
	Tools    = "tools"
)

const (
	chunkSize     = 48
	defaultPrompt = "Summarize these paragraphs and produce an action list."
	catalogPage   = 100
)

// Normalize maps a requested scenario to a known one. "mcp" is accepted as an
// alias of tools; anything unknown runs markdown.
func Normalize(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Tools, "mcp":
		return Tools
	default:
		return Markdown
	}
}

// ToolSet is the subset of the tool registry the runner needs.
type ToolSet interface {
	List(cursor string, pageSize int) ([]mcp.Tool, string)
	Call(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error)
}

// PlanItem is one proposed tool invocation.
type PlanItem struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// DefaultPlan is the tool plan proposed by the tools scenario.
var DefaultPlan = []PlanItem{
	{Name: "calc", Arguments: json.RawMessage(`{"expression":"12 * 7"}`)},
	{Name: "search_docs", Arguments: json.RawMessage(`{"query":"streamable http"}`)},
	{Name: "kv_put", Arguments: json.RawMessage(`{"key":"last_calc","value":"84"}`)},
	{Name: "kv_get", Arguments: json.RawMessage(`{"key":"last_calc"}`)},
}

// Runner implements task.Orchestrator.
type Runner struct {
	tools      ToolSet
	plan       []PlanItem
	chunkDelay time.Duration
	logger     *slog.Logger
}

var _ task.Orchestrator = (*Runner)(nil)

// Option configures a Runner.
type Option func(*Runner)

// WithChunkDelay sets the pause between markdown chunks.
func WithChunkDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d >= 0 {
			r.chunkDelay = d
		}
	}
}

// WithPlan replaces the tool plan.
func WithPlan(plan []PlanItem) Option {
	return func(r *Runner) { r.plan = plan }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner that executes tool plans against tools.
func NewRunner(tools ToolSet, opts ...Option) *Runner {
	r := &Runner{
		tools:      tools,
		plan:       DefaultPlan,
		chunkDelay: 120 * time.Millisecond,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run dispatches on the task's scenario.
func (r *Runner) Run(ctx context.Context, t *task.Task, msg domain.Message) error {
	scenario := Normalize(t.Scenario())
	r.logger.Debug("scenario started", "task_id", t.ID(), "scenario", scenario)
	if scenario == Tools {
		return r.runTools(ctx, t)
	}
	return r.runMarkdown(ctx, t, msg)
}

func (r *Runner) runMarkdown(ctx context.Context, t *task.Task, msg domain.Message) error {
	markdown := BuildMarkdown(prompt(msg), metadataBool(msg, "malformed"))
	for _, chunk := range SplitChunks(markdown, chunkSize) {
		if _, err := t.Append(domain.KindWorking, domain.TextPart(chunk)); err != nil {
			return err
		}
		if err := sleep(ctx, r.chunkDelay); err != nil {
			return err
		}
	}
	_, err := t.Append(domain.KindCompleted, domain.TextPart("\n\n**Done.**"))
	return err
}

func (r *Runner) runTools(ctx context.Context, t *task.Task) error {
	if _, err := t.Append(domain.KindWorking, domain.TextPart("Preparing MCP tool plan.")); err != nil {
		return err
	}
	if r.tools != nil {
		if err := r.appendData(t, domain.KindWorking, map[string]any{
			"type":  "tool_catalog",
			"tools": r.catalog(),
		}); err != nil {
			return err
		}
	}

	args, err := json.Marshal(r.plan)
	if err != nil {
		return fmt.Errorf("encode tool plan: %w", err)
	}
	pending, err := t.RequestApproval("tool-plan", args)
	if err != nil {
		return fmt.Errorf("request approval: %w", err)
	}
	if err := r.appendData(t, domain.KindInputRequired, map[string]any{
		"type":      "tool_proposal",
		"requestId": pending.ID,
		"tools":     r.plan,
	}); err != nil {
		return err
	}

	decision, err := t.AwaitApproval(ctx, pending)
	if err != nil {
		return err
	}
	if !decision.Approved {
		r.logger.Info("tool plan denied", "task_id", t.ID(), "reason", decision.Reason)
		_, err := t.Append(domain.KindCompleted, domain.TextPart("Tool plan was denied by the user. No tools were called."))
		return err
	}

	for _, item := range r.plan {
		res, err := r.call(ctx, item)
		if err != nil {
			return err
		}
		if err := r.appendData(t, domain.KindWorking, map[string]any{
			"type":    "tool_result",
			"name":    item.Name,
			"isError": res.IsError,
			"content": res.Content,
		}); err != nil {
			return err
		}
	}
	_, err = t.Append(domain.KindCompleted, domain.TextPart("Tools completed. Results stored and summarized in the audit trail."))
	return err
}

func (r *Runner) call(ctx context.Context, item PlanItem) (*mcp.CallToolResult, error) {
	if r.tools == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown tool '%s'.", item.Name)), nil
	}
	res, err := r.tools.Call(ctx, item.Name, item.Arguments)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		r.logger.Warn("tool call failed", "tool", item.Name, "error", err)
		return mcp.NewToolResultErrorFromErr("Tool call failed.", err), nil
	}
	return res, nil
}

func (r *Runner) catalog() []mcp.Tool {
	var all []mcp.Tool
	cursor := ""
	for {
		page, next := r.tools.List(cursor, catalogPage)
		all = append(all, page...)
		if next == "" {
			return all
		}
		cursor = next
	}
}

func (r *Runner) appendData(t *task.Task, kind string, payload any) error {
	part, err := domain.DataPartOf(domain.MimeJSON, payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	_, err = t.Append(kind, part)
	return err
}

// BuildMarkdown renders the canned summary for prompt. malformed leaves an
// unclosed emphasis marker so renderers can be exercised against bad input.
func BuildMarkdown(prompt string, malformed bool) string {
	summary := "## Summary\n" +
		"- Key request: " + strings.TrimSpace(prompt) + "\n" +
		"- Distilled into 2 themes: clarity and action\n" +
		"- Primary risk: ambiguity without structure\n"
	plan := "2. Draft a short plan with owners\n"
	if malformed {
		plan = "2. Draft a short plan with **missing close\n"
	}
	return summary + "\n## Action List\n" +
		"1. Capture the three most important points\n" +
		plan +
		"3. Confirm next check-in date\n"
}

// SplitChunks cuts s into pieces of at most size runes.
func SplitChunks(s string, size int) []string {
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += size {
		chunks = append(chunks, string(runes[i:min(i+size, len(runes))]))
	}
	return chunks
}

func prompt(msg domain.Message) string {
	for _, p := range msg.Parts {
		if strings.TrimSpace(p.Text) != "" {
			return p.Text
		}
	}
	return defaultPrompt
}

func metadataBool(msg domain.Message, key string) bool {
	raw, ok := msg.Metadata[key]
	if !ok {
		return false
	}
	var b bool
	return json.Unmarshal(raw, &b) == nil && b
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
