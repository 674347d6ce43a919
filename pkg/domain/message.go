package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message is an inbound client message.
type Message struct {
	Role     string                     `json:"role"`
	Parts    []Part                     `json:"parts"`
	Metadata map[string]json.RawMessage `json:"metadata,omitempty"`
}

// Validate checks that the message has at least one part and every part is well formed.
func (m Message) Validate() error {
	if len(m.Parts) == 0 {
		return errors.New("message must contain at least one part")
	}
	for i, p := range m.Parts {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	return nil
}

// MetadataString returns the string value stored under key, or def when absent or not a string.
func (m Message) MetadataString(key, def string) string {
	raw, ok := m.Metadata[key]
	if !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return def
	}
	return s
}

// MIME types used by data parts.
const (
	MimeJSON = "application/json"
)

// ToolApproval is the payload of an approval decision submitted by a client.
type ToolApproval struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason,omitempty"`
}

// FindToolApproval scans the message for a data part carrying a toolApproval payload.
func (m Message) FindToolApproval() (ToolApproval, bool) {
	for _, p := range m.Parts {
		if p.Data == nil || p.Data.MimeType != MimeJSON || len(p.Data.Payload) == 0 {
			continue
		}
		var envelope struct {
			ToolApproval *ToolApproval `json:"toolApproval"`
		}
		if err := json.Unmarshal(p.Data.Payload, &envelope); err != nil || envelope.ToolApproval == nil {
			continue
		}
		if envelope.ToolApproval.RequestID == "" {
			continue
		}
		return *envelope.ToolApproval, true
	}
	return ToolApproval{}, false
}
