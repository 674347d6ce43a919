// Package sse reads and writes the line-oriented server-sent events framing:
//
//	id: <sequence>
//	event: <kind>
//	data: <payload>
//	<blank line>
package sse

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Frame is one server-sent event record.
type Frame struct {
	ID    string
	Event string
	Data  []byte
}

var fieldSanitizer = strings.NewReplacer("\r", "", "\n", "")

// Encode writes f to w. Multi-line data is split into one data line per line;
// CRLF, CR and LF all end a line.
func Encode(w io.Writer, f Frame) error {
	var buf bytes.Buffer
	if f.ID != "" {
		buf.WriteString("id: ")
		buf.WriteString(fieldSanitizer.Replace(f.ID))
		buf.WriteByte('\n')
	}
	if f.Event != "" {
		buf.WriteString("event: ")
		buf.WriteString(fieldSanitizer.Replace(f.Event))
		buf.WriteByte('\n')
	}
	data := bytes.ReplaceAll(f.Data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
	for line := range bytes.SplitSeq(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// Writer streams frames to an HTTP response, flushing after each one.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for streaming and returns a Writer. Extra headers are
// set before the status line is written.
func NewWriter(w http.ResponseWriter, extra http.Header) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	for k, vs := range extra {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// WriteFrame writes one frame and flushes.
func (sw *Writer) WriteFrame(f Frame) error {
	if err := Encode(sw.w, f); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Comment writes a comment line, used as a heartbeat.
func (sw *Writer) Comment(text string) error {
	if _, err := io.WriteString(sw.w, ": "+fieldSanitizer.Replace(text)+"\n\n"); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}
