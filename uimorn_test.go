package uimorn

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venikman/ui-morn/pkg/adapters/memory"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/scenario"
	"github.com/venikman/ui-morn/pkg/task"
)

func drain(t *testing.T, tk *task.Task) []domain.Event {
	t.Helper()
	sub, err := tk.Subscribe(0)
	require.NoError(t, err)
	defer sub.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []domain.Event
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func toolsMessage() domain.Message {
	return domain.Message{
		Role:     "user",
		Parts:    []domain.Part{domain.TextPart("run the tools")},
		Metadata: map[string]json.RawMessage{"scenario": json.RawMessage(`"tools"`)},
	}
}

func TestEngine_StartTaskMirrorsToAudit(t *testing.T) {
	mirror := memory.NewStore()
	eng := New(WithMirror(mirror), WithScenarioOptions(scenario.WithChunkDelay(0)))

	tk, err := eng.StartTask(context.Background(), domain.Message{Parts: []domain.Part{domain.TextPart("hi")}})
	require.NoError(t, err)
	assert.Equal(t, scenario.Markdown, tk.Scenario())

	events := drain(t, tk)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.KindCompleted, events[len(events)-1].Kind)

	require.Eventually(t, func() bool {
		audit, err := eng.AuditEvents(context.Background(), tk.ID())
		return err == nil && len(audit) == len(events)
	}, time.Second, 5*time.Millisecond)

	summaries := eng.Tasks()
	require.Len(t, summaries, 1)
	assert.Equal(t, domain.StatusCompleted, summaries[0].Status)
}

func TestEngine_AuditWithoutMirror(t *testing.T) {
	eng := New()
	_, err := eng.AuditEvents(context.Background(), "task_x")
	assert.ErrorIs(t, err, ErrAuditUnavailable)
}

func TestEngine_ResolveApproval(t *testing.T) {
	eng := New()

	err := eng.ResolveApproval("task_missing", domain.ToolApproval{RequestID: "r1", Approved: true})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	tk, err := eng.StartTask(context.Background(), toolsMessage())
	require.NoError(t, err)

	var pending string
	require.Eventually(t, func() bool {
		p, ok := tk.PendingApproval()
		pending = p.ID
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	err = eng.ResolveApproval(tk.ID(), domain.ToolApproval{RequestID: "other", Approved: true})
	assert.ErrorIs(t, err, domain.ErrApprovalNotFound)

	require.NoError(t, eng.ResolveApproval(tk.ID(), domain.ToolApproval{RequestID: pending, Approved: true}))
	events := drain(t, tk)
	assert.Equal(t, "Tools completed. Results stored and summarized in the audit trail.", events[len(events)-1].Parts[0].Text)

	err = eng.ResolveApproval(tk.ID(), domain.ToolApproval{RequestID: pending, Approved: false})
	assert.ErrorIs(t, err, domain.ErrApprovalNotFound, "a decision is accepted once")
}

func TestEngine_CancelTask(t *testing.T) {
	eng := New()
	tk, err := eng.StartTask(context.Background(), toolsMessage())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := tk.PendingApproval()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, eng.CancelTask(tk.ID()))
	events := drain(t, tk)
	assert.Equal(t, domain.KindCanceled, events[len(events)-1].Kind)
	require.Eventually(t, func() bool { return eng.ActiveWorkers() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, eng.CancelTask(tk.ID()))
}

func TestEngine_EvictionCancelsWorker(t *testing.T) {
	eng := New(WithRetention(0, 100*time.Millisecond, 0))
	tk, err := eng.StartTask(context.Background(), toolsMessage())
	require.NoError(t, err)

	sub, err := tk.Subscribe(0)
	require.NoError(t, err)
	defer sub.Cancel()

	require.Eventually(t, func() bool {
		_, found := eng.Task(tk.ID())
		return !found && eng.ActiveWorkers() == 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.True(t, tk.Completed())
	_, pending := tk.PendingApproval()
	assert.False(t, pending)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var last domain.Event
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		last = ev
	}
	assert.Equal(t, domain.KindCanceled, last.Kind)
	assert.Equal(t, "Canceled: task evicted", last.Parts[0].Text)
}

func TestEngine_WorkerOutlivesRequestContext(t *testing.T) {
	eng := New(WithScenarioOptions(scenario.WithChunkDelay(time.Millisecond)))
	ctx, cancel := context.WithCancel(context.Background())
	tk, err := eng.StartTask(ctx, domain.Message{Parts: []domain.Part{domain.TextPart("hi")}})
	require.NoError(t, err)
	cancel()

	events := drain(t, tk)
	assert.Equal(t, domain.KindCompleted, events[len(events)-1].Kind)
}

func TestEngine_OrchestratorFailure(t *testing.T) {
	eng := New(WithOrchestrator(task.OrchestratorFunc(func(ctx context.Context, tk *task.Task, msg domain.Message) error {
		_, _ = tk.Append(domain.KindWorking, domain.TextPart("starting"))
		return errors.New("model unavailable")
	})))

	tk, err := eng.StartTask(context.Background(), domain.Message{})
	require.NoError(t, err)

	events := drain(t, tk)
	require.Len(t, events, 2)
	assert.Equal(t, domain.KindError, events[1].Kind)
	assert.Equal(t, "Error: model unavailable", events[1].Parts[0].Text)
}

func TestEngine_StartAfterShutdown(t *testing.T) {
	eng := New()
	require.NoError(t, eng.Shutdown(context.Background()))

	_, err := eng.StartTask(context.Background(), domain.Message{})
	require.Error(t, err)

	summaries := eng.Tasks()
	require.Len(t, summaries, 1)
	assert.Equal(t, domain.StatusCompleted, summaries[0].Status, "a task that never ran is still completed")
}

func TestEngine_MetricsAndTools(t *testing.T) {
	reg := prometheus.NewRegistry()
	eng := New(WithMetrics(reg))
	require.NotNil(t, eng.Gatherer())

	page, next := eng.ListTools("", 2)
	assert.Len(t, page, 2)
	assert.Equal(t, "2", next)

	res, err := eng.CallTool(context.Background(), "calc", json.RawMessage(`{"expression":"2 + 2"}`))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = eng.Invoker().Call(context.Background(), "nope", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	n, err := testutil.GatherAndCount(reg, "uimorn_tool_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Len(t, eng.ServerTools(), 5)
}
