// Package client talks to a ui-morn server: it starts tasks, follows their
// streams across disconnects, and submits approvals.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/venikman/ui-morn/internal/logging"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/sse"
)

// Update is one task stream frame.
type Update struct {
	TaskID    string        `json:"taskId"`
	Sequence  int64         `json:"sequence"`
	Status    string        `json:"status"`
	Parts     []domain.Part `json:"parts"`
	Timestamp time.Time     `json:"timestamp"`
}

// Terminal reports whether the update ends the task.
func (u Update) Terminal() bool { return domain.IsTerminal(u.Status) }

// Handler receives updates in sequence order. Returning an error stops the follow.
type Handler func(Update) error

// RetryConfig configures reconnection.
type RetryConfig struct {
	MaxAttempts  int           // consecutive failed reconnects before giving up
	BaseDelay    time.Duration // first backoff delay
	MaxDelay     time.Duration // backoff cap
	JitterFactor float64       // ±fraction applied to each delay
}

// DefaultRetryConfig returns the reconnection defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		BaseDelay:    250 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterFactor: 0.25,
	}
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	delay := float64(c.BaseDelay) * math.Pow(2, float64(attempt))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		delay += delay * c.JitterFactor * (2*rand.Float64() - 1)
	}
	return time.Duration(delay)
}

// APIError is a problem response from the server.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// Is maps status codes onto the domain errors.
func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusNotFound:
		return target == domain.ErrTaskNotFound
	case http.StatusGone:
		return target == domain.ErrCursorExpired
	case http.StatusConflict:
		return target == domain.ErrApprovalNotFound
	}
	return false
}

func transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Client is a ui-morn HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryConfig
	logger  *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry sets the reconnection policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		retry:   DefaultRetryConfig(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		apiErr.Status = resp.StatusCode
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Summary fetches a task summary.
func (c *Client) Summary(ctx context.Context, taskID string) (domain.TaskSummary, error) {
	var s domain.TaskSummary
	err := c.getJSON(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(taskID), nil, &s)
	return s, err
}

// Tasks lists task summaries.
func (c *Client) Tasks(ctx context.Context) ([]domain.TaskSummary, error) {
	var out []domain.TaskSummary
	err := c.getJSON(ctx, http.MethodGet, "/v1/tasks", nil, &out)
	return out, err
}

// Approve decides the pending approval of a task.
func (c *Client) Approve(ctx context.Context, taskID string, decision domain.ToolApproval) error {
	return c.getJSON(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(taskID)+"/approval", decision, nil)
}

// Cancel stops a running task.
func (c *Client) Cancel(ctx context.Context, taskID string) error {
	return c.getJSON(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(taskID)+":cancel", nil, nil)
}

// Stream starts a task for msg and delivers its updates until it ends,
// resuming from the last seen sequence when the connection drops.
func (c *Client) Stream(ctx context.Context, msg domain.Message, handle Handler) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/message:stream", map[string]any{"message": msg},
		http.Header{"Accept": []string{"text/event-stream"}})
	if err != nil {
		return "", err
	}
	taskID := resp.Header.Get("X-Task-Id")
	last, done, err := c.consume(resp, 0, handle)
	if done || err != nil && !transient(err) {
		return taskID, err
	}
	if taskID == "" {
		return "", errors.New("stream ended before the task id was known")
	}
	c.logger.Debug("stream interrupted, resuming", "task_id", taskID, "cursor", last, "error", err)
	return taskID, c.Follow(ctx, taskID, last, handle)
}

// Follow delivers the updates of taskID after cursor until the task ends.
// A stream that closes early is resumed while the task is still working.
// A 404 or 410 response is final; other failures are retried with backoff.
func (c *Client) Follow(ctx context.Context, taskID string, cursor int64, handle Handler) error {
	attempt := 0
	for {
		resp, err := c.do(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(taskID)+"/events", nil,
			http.Header{"Accept": []string{"text/event-stream"}, "Last-Event-ID": []string{strconv.FormatInt(cursor, 10)}})
		var done bool
		if err == nil {
			var last int64
			last, done, err = c.consume(resp, cursor, handle)
			if last > cursor {
				cursor = last
				attempt = 0
			}
		}
		if done {
			return err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// A completed task may end without a terminal event.
			summary, serr := c.Summary(ctx, taskID)
			switch {
			case serr == nil && summary.Status == domain.StatusCompleted:
				return nil
			case serr != nil && !transient(serr):
				return serr
			}
		}
		if err != nil && !transient(err) {
			return err
		}
		if attempt >= c.retry.MaxAttempts {
			return fmt.Errorf("follow %s: max reconnects exceeded: %w", taskID, err)
		}

		delay := c.retry.backoff(attempt)
		attempt++
		c.logger.Debug("reconnecting", "task_id", taskID, "cursor", cursor, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// consume reads one connection. done is true when the follow must stop:
// a terminal update was seen or the handler failed.
func (c *Client) consume(resp *http.Response, cursor int64, handle Handler) (last int64, done bool, err error) {
	defer resp.Body.Close()
	last = cursor
	rd := sse.NewReader(resp.Body)
	for {
		f, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return last, false, io.ErrUnexpectedEOF
		}
		if err != nil {
			return last, false, err
		}
		var u Update
		if err := json.Unmarshal(f.Data, &u); err != nil {
			return last, true, fmt.Errorf("decode frame %s: %w", f.ID, err)
		}
		if u.Sequence <= last {
			continue
		}
		last = u.Sequence
		if err := handle(u); err != nil {
			return last, true, err
		}
		if u.Terminal() {
			return last, true, nil
		}
	}
}
