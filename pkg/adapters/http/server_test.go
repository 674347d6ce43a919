package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ginsse "github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uimorn "github.com/venikman/ui-morn"
	"github.com/venikman/ui-morn/pkg/adapters/memory"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/scenario"
	"github.com/venikman/ui-morn/pkg/sse"
)

func newTestServer(t *testing.T, opts ...uimorn.Option) (*httptest.Server, *uimorn.Engine) {
	t.Helper()
	base := []uimorn.Option{uimorn.WithScenarioOptions(scenario.WithChunkDelay(0))}
	eng := uimorn.New(append(base, opts...)...)
	srv := httptest.NewServer(NewHandler(eng, WithHeartbeat(50*time.Millisecond), WithGatherer(eng.Gatherer())))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
		srv.Close()
	})
	return srv, eng
}

func post(t *testing.T, url string, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, r io.Reader) []sse.Frame {
	t.Helper()
	rd := sse.NewReader(r)
	var frames []sse.Frame
	for {
		f, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

func decodeUpdate(t *testing.T, f sse.Frame) TaskUpdate {
	t.Helper()
	var u TaskUpdate
	require.NoError(t, json.Unmarshal(f.Data, &u))
	return u
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

const markdownBody = `{"message":{"role":"user","parts":[{"text":"Plan the launch"}]}}`
const toolsBody = `{"message":{"role":"user","parts":[{"text":"run tools"}],"metadata":{"scenario":"tools"}}}`

// readUntilProposal reads frames until the tool proposal and returns its request id.
func readUntilProposal(t *testing.T, rd *sse.Reader) string {
	t.Helper()
	for {
		f, err := rd.Next()
		require.NoError(t, err)
		if f.Event != domain.KindInputRequired {
			continue
		}
		u := decodeUpdate(t, f)
		require.Len(t, u.Parts, 1)
		require.NotNil(t, u.Parts[0].Data)
		var proposal struct {
			Type      string `json:"type"`
			RequestID string `json:"requestId"`
		}
		require.NoError(t, json.Unmarshal(u.Parts[0].Data.Payload, &proposal))
		assert.Equal(t, "tool_proposal", proposal.Type)
		require.NotEmpty(t, proposal.RequestID)
		return proposal.RequestID
	}
}

func TestOperationalEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decodeBody[map[string]string](t, resp))

	resp = get(t, srv.URL+"/info", nil)
	info := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "1.0.0", info["api_version"])
	assert.Equal(t, uimorn.Version, info["version"])

	resp = get(t, srv.URL+"/.well-known/agent-card.json", nil)
	card := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "ui-morn", card["name"])

	resp = get(t, srv.URL+"/openapi.yaml", nil)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "/v1/message:stream")
}

func TestGetSwagger(t *testing.T) {
	doc, err := GetSwagger()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", doc.Info.Version)
	assert.NotNil(t, doc.Paths.Value("/mcp"))
	assert.NotNil(t, doc.Paths.Value("/v1/tasks/{taskId}/events"))
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/message:stream", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "Mcp-Session-Id")
}

func TestStreamMessage_Markdown(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/v1/message:stream", markdownBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	taskID := resp.Header.Get(HeaderTaskID)
	require.NotEmpty(t, taskID)

	frames := readAll(t, resp.Body)
	require.Len(t, frames, 7)
	for i, f := range frames {
		u := decodeUpdate(t, f)
		assert.Equal(t, int64(i+1), u.Sequence)
		assert.Equal(t, taskID, u.TaskID)
		assert.Equal(t, f.Event, u.Status)
	}
	assert.Equal(t, domain.KindCompleted, frames[6].Event)
	assert.Contains(t, decodeUpdate(t, frames[6]).Parts[0].Text, "**Done.**")

	summary := decodeBody[domain.TaskSummary](t, get(t, srv.URL+"/v1/tasks/"+taskID, nil))
	assert.Equal(t, domain.TaskSummary{TaskID: taskID, Status: domain.StatusCompleted, Sequence: 7}, summary)

	list := decodeBody[[]domain.TaskSummary](t, get(t, srv.URL+"/v1/tasks", nil))
	assert.Contains(t, list, summary)
}

func TestResume(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := post(t, srv.URL+"/v1/message:stream", markdownBody, nil)
	taskID := resp.Header.Get(HeaderTaskID)
	readAll(t, resp.Body)

	t.Run("Last-Event-ID header", func(t *testing.T) {
		resp := get(t, srv.URL+"/v1/tasks/"+taskID+"/events", map[string]string{HeaderLastEventID: "5"})
		frames := readAll(t, resp.Body)
		require.Len(t, frames, 2)
		assert.Equal(t, "6", frames[0].ID)
		assert.Equal(t, "7", frames[1].ID)
	})

	t.Run("cursor query", func(t *testing.T) {
		resp := get(t, srv.URL+"/v1/tasks/"+taskID+":subscribe?cursor=6", nil)
		frames := readAll(t, resp.Body)
		require.Len(t, frames, 1)
		assert.Equal(t, domain.KindCompleted, frames[0].Event)
	})

	t.Run("post subscribe past the end", func(t *testing.T) {
		resp := post(t, srv.URL+"/v1/tasks/"+taskID+":subscribe", "", map[string]string{HeaderLastEventID: "7"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, readAll(t, resp.Body))
	})

	t.Run("malformed cursor replays everything", func(t *testing.T) {
		resp := get(t, srv.URL+"/v1/tasks/"+taskID+"/events", map[string]string{HeaderLastEventID: "abc"})
		assert.Len(t, readAll(t, resp.Body), 7)
	})
}

func TestResume_IndependentParser(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := post(t, srv.URL+"/v1/message:stream", markdownBody, nil)

	events, err := ginsse.Decode(resp.Body)
	require.NoError(t, err)
	require.Len(t, events, 7)
	assert.Equal(t, "1", events[0].Id)
	assert.Equal(t, "completed", events[6].Event)
}

func TestResume_CursorExpired(t *testing.T) {
	srv, _ := newTestServer(t, uimorn.WithRetention(2, 0, 0))
	resp := post(t, srv.URL+"/v1/message:stream", markdownBody, nil)
	taskID := resp.Header.Get(HeaderTaskID)
	readAll(t, resp.Body)

	resp = get(t, srv.URL+"/v1/tasks/"+taskID+"/events", map[string]string{HeaderLastEventID: "1"})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	problem := decodeBody[Problem](t, resp)
	assert.Equal(t, "Cursor expired", problem.Title)

	resp = get(t, srv.URL+"/v1/tasks/"+taskID+"/events", map[string]string{HeaderLastEventID: "5"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, readAll(t, resp.Body), 2)
}

func TestStreamMessage_InvalidRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := map[string]string{
		"not json":        `{`,
		"no message":      `{}`,
		"no parts":        `{"message":{"role":"user","parts":[]}}`,
		"ambiguous part":  `{"message":{"role":"user","parts":[{"text":"a","data":{"mimeType":"application/json","payload":{}}}]}}`,
		"empty part":      `{"message":{"role":"user","parts":[{}]}}`,
		"non-object data": `{"message":{"role":"user","parts":[{"data":{"mimeType":"application/json","payload":[1]}}]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := post(t, srv.URL+"/v1/message:stream", body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
		})
	}

	t.Run("oversized text", func(t *testing.T) {
		big := strings.Repeat("a", domain.MaxTextBytes+1)
		resp := post(t, srv.URL+"/v1/message:stream", `{"message":{"role":"user","parts":[{"text":"`+big+`"}]}}`, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestTaskNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/tasks/missing"},
		{http.MethodGet, "/v1/tasks/missing:subscribe"},
		{http.MethodGet, "/v1/tasks/missing/events"},
		{http.MethodGet, "/v1/tasks/missing/ws"},
		{http.MethodPost, "/v1/tasks/missing:cancel"},
		{http.MethodPost, "/v1/tasks/missing/approval"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			var resp *http.Response
			if tc.method == http.MethodGet {
				resp = get(t, srv.URL+tc.path, nil)
			} else {
				resp = post(t, srv.URL+tc.path, `{"requestId":"r","approved":true}`, nil)
			}
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			assert.Equal(t, "Task not found", decodeBody[Problem](t, resp).Title)
		})
	}
}

func TestUnknownAction(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := post(t, srv.URL+"/v1/message:stream", markdownBody, nil)
	taskID := resp.Header.Get(HeaderTaskID)
	readAll(t, resp.Body)

	resp = get(t, srv.URL+"/v1/tasks/"+taskID+":frobnicate", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Unknown action", decodeBody[Problem](t, resp).Title)

	resp = post(t, srv.URL+"/v1/tasks/"+taskID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApprovalViaSendMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/v1/message:stream", toolsBody, nil)
	taskID := resp.Header.Get(HeaderTaskID)
	rd := sse.NewReader(resp.Body)
	requestID := readUntilProposal(t, rd)

	approve := `{"taskId":"` + taskID + `","message":{"role":"user","parts":[{"data":{"mimeType":"application/json","payload":{"toolApproval":{"requestId":"` + requestID + `","approved":true}}}}]}}`
	ack := post(t, srv.URL+"/v1/message:send", approve, nil)
	require.Equal(t, http.StatusOK, ack.StatusCode)
	body := decodeBody[SendMessageResponse](t, ack)
	assert.Equal(t, taskID, body.TaskID)
	assert.Equal(t, "Approval received.", body.Message.Parts[0].Text)

	var results []string
	var last sse.Frame
	for {
		f, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		last = f
		u := decodeUpdate(t, f)
		if len(u.Parts) == 1 && u.Parts[0].Data != nil {
			var payload struct {
				Type string `json:"type"`
				Name string `json:"name"`
			}
			require.NoError(t, json.Unmarshal(u.Parts[0].Data.Payload, &payload))
			if payload.Type == "tool_result" {
				results = append(results, payload.Name)
			}
		}
	}
	assert.Equal(t, []string{"calc", "search_docs", "kv_put", "kv_get"}, results)
	assert.Equal(t, domain.KindCompleted, last.Event)

	again := post(t, srv.URL+"/v1/message:send", approve, nil)
	assert.Equal(t, http.StatusConflict, again.StatusCode)
	assert.Equal(t, "Approval not pending", decodeBody[Problem](t, again).Title)
}

func TestSendMessage_Rejections(t *testing.T) {
	srv, _ := newTestServer(t)
	text := `{"message":{"role":"user","parts":[{"text":"hi"}]}}`

	resp := post(t, srv.URL+"/v1/message:send", text, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Unsupported request", decodeBody[Problem](t, resp).Title)

	resp = post(t, srv.URL+"/v1/message:send", `{"taskId":"missing","message":{"role":"user","parts":[{"text":"hi"}]}}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	stream := post(t, srv.URL+"/v1/message:stream", markdownBody, nil)
	taskID := stream.Header.Get(HeaderTaskID)
	readAll(t, stream.Body)

	resp = post(t, srv.URL+"/v1/message:send", `{"taskId":"`+taskID+`","message":{"role":"user","parts":[{"text":"hi"}]}}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Only tool approvals are accepted for existing tasks.", decodeBody[Problem](t, resp).Detail)
}

func TestApproveEndpoint_Deny(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/v1/message:stream", toolsBody, nil)
	taskID := resp.Header.Get(HeaderTaskID)
	rd := sse.NewReader(resp.Body)
	requestID := readUntilProposal(t, rd)

	bad := post(t, srv.URL+"/v1/tasks/"+taskID+"/approval", `{"approved":true}`, nil)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	wrong := post(t, srv.URL+"/v1/tasks/"+taskID+"/approval", `{"requestId":"nope","approved":true}`, nil)
	assert.Equal(t, http.StatusConflict, wrong.StatusCode)

	ok := post(t, srv.URL+"/v1/tasks/"+taskID+"/approval", `{"requestId":"`+requestID+`","approved":false,"reason":"not now"}`, nil)
	require.Equal(t, http.StatusOK, ok.StatusCode)
	assert.Equal(t, false, decodeBody[map[string]any](t, ok)["approved"])

	f, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, domain.KindCompleted, f.Event)
	assert.Equal(t, "Tool plan was denied by the user. No tools were called.", decodeUpdate(t, f).Parts[0].Text)
	_, err = rd.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCancelTask(t *testing.T) {
	srv, eng := newTestServer(t)

	resp := post(t, srv.URL+"/v1/message:stream", toolsBody, nil)
	taskID := resp.Header.Get(HeaderTaskID)
	rd := sse.NewReader(resp.Body)
	readUntilProposal(t, rd)

	cancelResp := post(t, srv.URL+"/v1/tasks/"+taskID+":cancel", "", nil)
	require.Equal(t, http.StatusAccepted, cancelResp.StatusCode)
	assert.Equal(t, "canceling", decodeBody[map[string]string](t, cancelResp)["status"])

	f, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, domain.KindCanceled, f.Event)
	assert.True(t, strings.HasPrefix(decodeUpdate(t, f).Parts[0].Text, "Canceled: "))

	require.Eventually(t, func() bool { return eng.ActiveWorkers() == 0 }, 2*time.Second, 10*time.Millisecond)
	again := post(t, srv.URL+"/v1/tasks/"+taskID+":cancel", "", nil)
	assert.Equal(t, http.StatusConflict, again.StatusCode)
	assert.Equal(t, "Task not running", decodeBody[Problem](t, again).Title)
}

func TestStreamOutlivesClient(t *testing.T) {
	srv, eng := newTestServer(t)

	resp := post(t, srv.URL+"/v1/message:stream", toolsBody, nil)
	taskID := resp.Header.Get(HeaderTaskID)
	rd := sse.NewReader(resp.Body)
	requestID := readUntilProposal(t, rd)
	resp.Body.Close()

	ok := post(t, srv.URL+"/v1/tasks/"+taskID+"/approval", `{"requestId":"`+requestID+`","approved":true}`, nil)
	require.Equal(t, http.StatusOK, ok.StatusCode)

	require.Eventually(t, func() bool {
		task, found := eng.Task(taskID)
		return found && task.Completed()
	}, 2*time.Second, 10*time.Millisecond)

	frames := readAll(t, get(t, srv.URL+"/v1/tasks/"+taskID+"/events", map[string]string{HeaderLastEventID: "3"}).Body)
	require.Len(t, frames, 5)
	assert.Equal(t, domain.KindCompleted, frames[4].Event)
}

func TestHeartbeat(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := post(t, srv.URL+"/v1/message:stream", toolsBody, nil)
	taskID := resp.Header.Get(HeaderTaskID)
	readUntilProposal(t, sse.NewReader(resp.Body))
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/tasks/"+taskID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderLastEventID, "3")
	live, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer live.Body.Close()

	raw, _ := io.ReadAll(live.Body)
	assert.Contains(t, string(raw), ": keep-alive\n\n")
}

func TestSubscribeTaskWS(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := post(t, srv.URL+"/v1/message:stream", markdownBody, nil)
	taskID := resp.Header.Get(HeaderTaskID)
	readAll(t, resp.Body)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/tasks/" + taskID + "/ws?cursor=4"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var updates []TaskUpdate
	for {
		var u TaskUpdate
		if err := conn.ReadJSON(&u); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		updates = append(updates, u)
	}
	require.Len(t, updates, 3)
	assert.Equal(t, int64(5), updates[0].Sequence)
	assert.Equal(t, domain.KindCompleted, updates[2].Status)
}

func rpc(t *testing.T, srv *httptest.Server, body string, headers map[string]string) *http.Response {
	t.Helper()
	return post(t, srv.URL+"/mcp", body, headers)
}

func TestMCP_Errors(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, tc := range []struct {
		name   string
		body   string
		status int
		code   int
		msg    string
	}{
		{"parse", `{`, http.StatusBadRequest, codeParseError, "Invalid JSON"},
		{"version", `{"jsonrpc":"1.0","id":1,"method":"tools/list"}`, http.StatusBadRequest, codeInvalidRequest, "Invalid JSON-RPC version"},
		{"method", `{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`, http.StatusNotFound, codeMethodNotFound, "Method not found"},
		{"no params", `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`, http.StatusBadRequest, codeInvalidParams, "Invalid params"},
		{"no name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`, http.StatusBadRequest, codeInvalidParams, "Missing tool name"},
		{"no arguments", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"calc"}}`, http.StatusBadRequest, codeInvalidParams, "Missing tool arguments"},
		{"array arguments", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"calc","arguments":[]}}`, http.StatusBadRequest, codeInvalidParams, "Missing tool arguments"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp := rpc(t, srv, tc.body, nil)
			assert.Equal(t, tc.status, resp.StatusCode)
			out := decodeBody[rpcResponse](t, resp)
			require.NotNil(t, out.Error)
			assert.Equal(t, tc.code, out.Error.Code)
			assert.Equal(t, tc.msg, out.Error.Message)
		})
	}
}

func TestMCP_ToolsListPaging(t *testing.T) {
	srv, _ := newTestServer(t)

	var names []string
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		params := `{}`
		if cursor != "" {
			params = `{"cursor":"` + cursor + `"}`
		}
		resp := rpc(t, srv, `{"jsonrpc":"2.0","id":"p","method":"tools/list","params":`+params+`}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out struct {
			ID     string          `json:"id"`
			Result toolsListResult `json:"result"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, "p", out.ID)
		assert.LessOrEqual(t, len(out.Result.Tools), ToolsPageSize)
		for _, tool := range out.Result.Tools {
			names = append(names, tool.Name)
		}
		cursor = out.Result.NextCursor
		if cursor == "" {
			break
		}
	}
	assert.Equal(t, []string{"calc", "http_get", "kv_put", "kv_get", "search_docs"}, names)
}

type rpcCallOut struct {
	ID     json.RawMessage `json:"id"`
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

func TestMCP_ToolsCallJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := rpc(t, srv, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"calc","arguments":{"expression":"12 * 7"}}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[rpcCallOut](t, resp)
	assert.JSONEq(t, `7`, string(out.ID))
	assert.False(t, out.Result.IsError)
	require.Len(t, out.Result.Content, 1)
	assert.Equal(t, "text", out.Result.Content[0].Type)
	assert.Equal(t, "Result: 84", out.Result.Content[0].Text)

	resp = rpc(t, srv, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"nope","arguments":{}}}`, nil)
	out = decodeBody[rpcCallOut](t, resp)
	assert.True(t, out.Result.IsError)
	assert.Equal(t, "Unknown tool 'nope'.", out.Result.Content[0].Text)
}

func TestMCP_ToolsCallStreamAndReplay(t *testing.T) {
	srv, _ := newTestServer(t)
	call := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"calc","arguments":{"expression":"2 + 3"}}}`

	resp := rpc(t, srv, call, map[string]string{"Accept": "application/json, text/event-stream"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionID := resp.Header.Get(HeaderSessionID)
	require.NotEmpty(t, sessionID)

	frames := readAll(t, resp.Body)
	require.Len(t, frames, 3)
	assert.Equal(t, []string{domain.KindToolStarted, domain.KindToolResult, domain.KindToolDone},
		[]string{frames[0].Event, frames[1].Event, frames[2].Event})
	assert.Equal(t, "1", frames[0].ID)

	var started struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  struct {
			IsPartial bool `json:"isPartial"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(frames[0].Data, &started))
	assert.Equal(t, "2.0", started.JSONRPC)
	assert.JSONEq(t, `1`, string(started.ID))
	assert.True(t, started.Result.IsPartial)
	assert.Contains(t, string(frames[1].Data), "Result: 5")

	// Resuming from a cursor with buffered events replays without calling again.
	replay := rpc(t, srv, call, map[string]string{
		HeaderStream:      "true",
		HeaderSessionID:   sessionID,
		HeaderLastEventID: "1",
	})
	assert.Equal(t, sessionID, replay.Header.Get(HeaderSessionID))
	replayed := readAll(t, replay.Body)
	require.Len(t, replayed, 2)
	assert.Equal(t, "2", replayed[0].ID)

	// A new call on the same session continues the sequence.
	next := rpc(t, srv, call, map[string]string{HeaderStream: "true", HeaderSessionID: sessionID})
	more := readAll(t, next.Body)
	require.Len(t, more, 3)
	assert.Equal(t, "4", more[0].ID)
}

func TestMCP_GetSessionStream(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv.URL+"/mcp", map[string]string{HeaderSessionID: "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	call := rpc(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"kv_put","arguments":{"key":"a","value":"b"}}}`,
		map[string]string{HeaderStream: "true", HeaderSessionID: "s-1"})
	assert.Equal(t, "s-1", call.Header.Get(HeaderSessionID))
	readAll(t, call.Body)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderSessionID, "s-1")
	live, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer live.Body.Close()

	rd := sse.NewReader(live.Body)
	f, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, domain.KindToolStarted, f.Event)
}

func TestAudit(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		srv, _ := newTestServer(t)
		resp := get(t, srv.URL+"/v1/audit/anything", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("mirrored", func(t *testing.T) {
		srv, _ := newTestServer(t, uimorn.WithMirror(memory.NewStore()))
		resp := post(t, srv.URL+"/v1/message:stream", markdownBody, nil)
		taskID := resp.Header.Get(HeaderTaskID)
		readAll(t, resp.Body)

		require.Eventually(t, func() bool {
			resp := get(t, srv.URL+"/v1/audit/"+taskID, nil)
			var events []domain.Event
			if json.NewDecoder(resp.Body).Decode(&events) != nil {
				return false
			}
			return len(events) == 7 && events[6].Kind == domain.KindCompleted
		}, 2*time.Second, 20*time.Millisecond)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, uimorn.WithMetrics(prometheus.NewRegistry()))
	rpc(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"calc","arguments":{"expression":"1 + 1"}}}`, nil)

	resp := get(t, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "uimorn_tool_calls_total")
}

func TestTaskFrame(t *testing.T) {
	ev := domain.Event{OwnerID: "t1", Sequence: 3, Kind: domain.KindWorking, Timestamp: time.Unix(0, 0).UTC()}
	f, err := taskFrame(ev)
	require.NoError(t, err)
	assert.Equal(t, "3", f.ID)
	assert.Equal(t, "working", f.Event)
	assert.JSONEq(t, `{"taskId":"t1","sequence":3,"status":"working","parts":[],"timestamp":"1970-01-01T00:00:00Z"}`, string(f.Data))

	var buf bytes.Buffer
	require.NoError(t, sse.Encode(&buf, f))
	events, err := ginsse.Decode(&buf)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "3", events[0].Id)
}

func TestSplitRef(t *testing.T) {
	id, action := splitRef("task_1:subscribe")
	assert.Equal(t, "task_1", id)
	assert.Equal(t, "subscribe", action)

	id, action = splitRef("task_1")
	assert.Equal(t, "task_1", id)
	assert.Empty(t, action)
}
