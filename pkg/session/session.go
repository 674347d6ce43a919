package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/eventlog"
)

// Invoker runs a tool by name.
type Invoker interface {
	Call(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error)
}

// Call is one JSON-RPC tools/call request.
type Call struct {
	RPCID     json.RawMessage
	Name      string
	Arguments json.RawMessage
}

// Session is a client's tool-call history.
type Session struct {
	id        string
	createdAt time.Time
	log       *eventlog.Log

	// calls serializes invocations so each started/result/done triple is contiguous.
	calls sync.Mutex
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Log exposes the underlying event log.
func (s *Session) Log() *eventlog.Log { return s.log }

// Subscribe opens a replay-then-live subscription after cursor.
func (s *Session) Subscribe(cursor int64) (*eventlog.Subscription, error) {
	return s.log.Subscribe(cursor)
}

// Resume returns the buffered events after cursor. replayOnly is true when the
// request is a pure resume (cursor > 0 with events to replay) and must not
// invoke anything.
func (s *Session) Resume(cursor int64) (events []domain.Event, replayOnly bool, err error) {
	events, err = s.log.Since(cursor)
	if err != nil {
		return nil, false, err
	}
	return events, cursor > 0 && len(events) > 0, nil
}

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type partialResult struct {
	IsPartial bool          `json:"isPartial"`
	Content   []mcp.Content `json:"content"`
}

type finalResult struct {
	IsError bool          `json:"isError"`
	Content []mcp.Content `json:"content"`
}

// Invoke runs one tool call and appends tool.started, tool.result and
// tool.done. Each appended event is passed to emit; once emit fails the
// remaining events are still appended so a later resume can replay them.
// The tool itself runs detached from ctx cancellation for the same reason.
func (s *Session) Invoke(ctx context.Context, call Call, inv Invoker, emit func(domain.Event) error) error {
	s.calls.Lock()
	defer s.calls.Unlock()

	var emitErr error
	record := func(kind string, result any) error {
		ev, err := s.appendEnvelope(kind, call.RPCID, result)
		if err != nil {
			return err
		}
		if emit != nil && emitErr == nil {
			emitErr = emit(ev)
		}
		return nil
	}

	started := partialResult{
		IsPartial: true,
		Content:   []mcp.Content{mcp.NewTextContent(fmt.Sprintf("Calling %s...", call.Name))},
	}
	if err := record(domain.KindToolStarted, started); err != nil {
		return err
	}

	res, err := inv.Call(context.WithoutCancel(ctx), call.Name, call.Arguments)
	if err != nil {
		res = mcp.NewToolResultError(err.Error())
	}
	if err := record(domain.KindToolResult, finalResult{IsError: res.IsError, Content: res.Content}); err != nil {
		return err
	}
	if err := record(domain.KindToolDone, partialResult{IsPartial: false, Content: res.Content}); err != nil {
		return err
	}
	return emitErr
}

func (s *Session) appendEnvelope(kind string, id json.RawMessage, result any) (domain.Event, error) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	part, err := domain.DataPartOf(domain.MimeJSON, envelope{JSONRPC: "2.0", ID: id, Result: result})
	if err != nil {
		return domain.Event{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return s.log.Append(kind, part)
}
