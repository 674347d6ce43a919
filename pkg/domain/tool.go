package domain

import "encoding/json"

// ToolCall is a request to invoke a named tool with JSON arguments.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
