package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/venikman/ui-morn/pkg/domain"
	"github.com/venikman/ui-morn/pkg/eventlog"
	"github.com/venikman/ui-morn/pkg/sse"
)

const wsWriteWait = 10 * time.Second

// TaskUpdate is the payload of every task stream frame.
type TaskUpdate struct {
	TaskID    string        `json:"taskId"`
	Sequence  int64         `json:"sequence"`
	Status    string        `json:"status"`
	Parts     []domain.Part `json:"parts"`
	Timestamp time.Time     `json:"timestamp"`
}

func taskUpdate(ev domain.Event) TaskUpdate {
	parts := ev.Parts
	if parts == nil {
		parts = []domain.Part{}
	}
	return TaskUpdate{
		TaskID:    ev.OwnerID,
		Sequence:  ev.Sequence,
		Status:    ev.Kind,
		Parts:     parts,
		Timestamp: ev.Timestamp,
	}
}

func taskFrame(ev domain.Event) (sse.Frame, error) {
	data, err := json.Marshal(taskUpdate(ev))
	if err != nil {
		return sse.Frame{}, err
	}
	return sse.Frame{ID: strconv.FormatInt(ev.Sequence, 10), Event: ev.Kind, Data: data}, nil
}

// cursorFrom reads the resume cursor from Last-Event-ID, falling back to the
// cursor query parameter for clients that cannot set headers.
func cursorFrom(r *http.Request) int64 {
	if v := r.Header.Get(HeaderLastEventID); v != "" {
		return domain.ParseCursor(v)
	}
	return domain.ParseCursor(r.URL.Query().Get("cursor"))
}

func cursorExpired(w http.ResponseWriter, log *eventlog.Log) {
	writeProblem(w, http.StatusGone, "Cursor expired",
		"Events up to sequence "+strconv.FormatInt(log.Floor(), 10)+" are no longer retained.")
}

// next waits for the next event, giving up after the heartbeat interval so
// the caller can send a keep-alive.
func (s *Server) next(ctx context.Context, sub *eventlog.Subscription) (domain.Event, error) {
	if s.heartbeat <= 0 {
		return sub.Next(ctx)
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.heartbeat)
	defer cancel()
	return sub.Next(waitCtx)
}

func isHeartbeat(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
}

// pumpSSE copies sub to sw until the stream ends or the client goes away.
// Leaving the loop never touches the owner; the caller cancels sub.
func (s *Server) pumpSSE(ctx context.Context, sw *sse.Writer, sub *eventlog.Subscription, frame func(domain.Event) (sse.Frame, error), logger *slog.Logger) {
	for {
		ev, err := s.next(ctx, sub)
		switch {
		case err == nil:
			f, err := frame(ev)
			if err != nil {
				logger.Error("frame encode failed", "sequence", ev.Sequence, "error", err)
				return
			}
			if err := sw.WriteFrame(f); err != nil {
				logger.Debug("stream client gone", "error", err)
				return
			}
		case isHeartbeat(ctx, err):
			if err := sw.Comment("keep-alive"); err != nil {
				return
			}
		case errors.Is(err, io.EOF):
			return
		case errors.Is(err, domain.ErrSlowConsumer):
			logger.Warn("subscriber fell behind and was disconnected", "cursor", sub.Cursor())
			return
		default:
			logger.Debug("stream closed", "error", err)
			return
		}
	}
}

// pumpWS copies sub to a websocket connection as TaskUpdate JSON messages.
func (s *Server) pumpWS(ctx context.Context, conn *websocket.Conn, sub *eventlog.Subscription, logger *slog.Logger) {
	closeWith := func(code int, text string) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
	}
	for {
		ev, err := s.next(ctx, sub)
		switch {
		case err == nil:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(taskUpdate(ev)); err != nil {
				logger.Debug("websocket client gone", "error", err)
				return
			}
		case isHeartbeat(ctx, err):
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case errors.Is(err, io.EOF):
			closeWith(websocket.CloseNormalClosure, "stream complete")
			return
		case errors.Is(err, domain.ErrSlowConsumer):
			logger.Warn("websocket subscriber fell behind", "cursor", sub.Cursor())
			closeWith(websocket.CloseTryAgainLater, "resume from cursor "+strconv.FormatInt(sub.Cursor(), 10))
			return
		default:
			return
		}
	}
}
