package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// FilePart references a file by URL.
type FilePart struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url,omitempty"`
}

// DataPart carries a structured payload tagged with a MIME type.
type DataPart struct {
	MimeType string          `json:"mimeType,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Part is one fragment of an event payload or a message.
// A valid part holds exactly one of Text, File, or Data.
type Part struct {
	Text     string            `json:"text,omitempty"`
	File     *FilePart         `json:"file,omitempty"`
	Data     *DataPart         `json:"data,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TextPart returns a part holding text.
func TextPart(text string) Part {
	return Part{Text: text}
}

// DataPartOf encodes v as the payload of a data part.
func DataPartOf(mimeType string, v any) (Part, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Part{}, err
	}
	return Part{Data: &DataPart{MimeType: mimeType, Payload: raw}}, nil
}

// Validate enforces that exactly one of text, file, or data is set.
func (p Part) Validate() error {
	n := 0
	if strings.TrimSpace(p.Text) != "" {
		n++
	}
	if p.File != nil {
		n++
	}
	if p.Data != nil {
		n++
	}
	if n != 1 {
		return ErrInvalidPart
	}
	return nil
}

// UnmarshalJSON accepts both the nested form ({"data": {...}}) and the
// flattened form ({"kind": "data", "mimeType": ..., "payload": ...}).
func (p *Part) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.New("part must be a JSON object")
	}

	var out Part
	if v, ok := raw["text"]; ok {
		// Non-string text is ignored, matching how clients send nulls.
		_ = json.Unmarshal(v, &out.Text)
	}
	if v, ok := raw["file"]; ok && isObject(v) {
		out.File = &FilePart{}
		if err := json.Unmarshal(v, out.File); err != nil {
			return err
		}
	}
	if v, ok := raw["data"]; ok && isObject(v) {
		d, err := parseDataPart(v)
		if err != nil {
			return err
		}
		out.Data = d
	} else if v, ok := raw["kind"]; ok {
		var kind string
		if json.Unmarshal(v, &kind) == nil && strings.EqualFold(kind, "data") {
			d, err := parseDataPart(b)
			if err != nil {
				return err
			}
			out.Data = d
		}
	}
	if v, ok := raw["metadata"]; ok && isObject(v) {
		out.Metadata = readMetadata(v)
	}

	*p = out
	return nil
}

func parseDataPart(b []byte) (*DataPart, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	d := &DataPart{}
	if v, ok := fields["mimeType"]; ok {
		_ = json.Unmarshal(v, &d.MimeType)
	}
	if v, ok := fields["payload"]; ok {
		d.Payload = append(json.RawMessage(nil), v...)
	}
	return d, nil
}

func readMetadata(b []byte) map[string]string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil
	}
	md := make(map[string]string, len(fields))
	for k, v := range fields {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			md[k] = s
			continue
		}
		md[k] = string(v)
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

func isObject(b json.RawMessage) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
