package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Reader parses frames from a stream incrementally.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next frame. Comment-only records are skipped. At the end
// of the stream a trailing unterminated frame is returned before io.EOF.
func (rd *Reader) Next() (Frame, error) {
	var (
		f       Frame
		data    bytes.Buffer
		hasData bool
		seen    bool
	)
	for {
		line, err := rd.r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Frame{}, err
		}
		eof := errors.Is(err, io.EOF)
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if seen {
				f.Data = data.Bytes()
				return f, nil
			}
			if eof {
				return Frame{}, io.EOF
			}
			continue
		}

		if line[0] != ':' {
			field, value, _ := bytes.Cut(line, []byte(":"))
			value = bytes.TrimPrefix(value, []byte(" "))
			switch string(field) {
			case "id":
				f.ID = string(value)
				seen = true
			case "event":
				f.Event = string(value)
				seen = true
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.Write(value)
				hasData = true
				seen = true
			}
		}

		if eof {
			if seen {
				f.Data = data.Bytes()
				return f, nil
			}
			return Frame{}, io.EOF
		}
	}
}
