package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roelfdiedericks/voicenav/internal/protocol"
)

// Message types sent by the voice orchestrator
const (
	TypeToolCalls    = "tool-calls"
	TypeStatusUpdate = "status-update"
	TypeTranscript   = "transcript"
)

// Request is the webhook body
type Request struct {
	Message Message `json:"message"`
}

// Message is one orchestrator event. ToolCalls stays raw so a malformed
// list can be told apart from a malformed body.
type Message struct {
	Type       string          `json:"type"`
	Call       *Call           `json:"call,omitempty"`
	ToolCalls  json.RawMessage `json:"toolCalls,omitempty"`
	Role       string          `json:"role,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
}

// Call identifies the voice call a message belongs to
type Call struct {
	ID       string         `json:"id"`
	Status   string         `json:"status,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SessionID returns the page session the call addresses: metadata.sessionId
// when present, else the call id.
func (c *Call) SessionID() string {
	if c == nil {
		return ""
	}
	if sid, ok := c.Metadata["sessionId"].(string); ok && strings.TrimSpace(sid) != "" {
		return strings.TrimSpace(sid)
	}
	return c.ID
}

// MetadataSessionID returns metadata.sessionId, or ""
func (c *Call) MetadataSessionID() string {
	if c == nil {
		return ""
	}
	sid, _ := c.Metadata["sessionId"].(string)
	return strings.TrimSpace(sid)
}

// ToolCall is one function invocation requested by the agent
type ToolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type,omitempty"`
	Function Function `json:"function"`
}

// Function names the function and carries its arguments
type Function struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Params decodes the arguments, which arrive either as an object or as a
// JSON-encoded string holding one.
func (f Function) Params() (map[string]any, error) {
	raw := bytes.TrimSpace(f.Arguments)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: arguments: %v", protocol.ErrInvalidParams, err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		raw = []byte(s)
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("%w: arguments must be an object: %v", protocol.ErrInvalidParams, err)
	}
	return params, nil
}

// ErrNoToolCalls is returned for a tool-calls message without a usable list.
// The text is what the orchestrator expects on the wire.
var ErrNoToolCalls = errors.New("No tool calls found") //nolint:staticcheck

// ParseToolCalls decodes the raw tool call list. A missing or non-array
// list is ErrNoToolCalls.
func (m Message) ParseToolCalls() ([]ToolCall, error) {
	raw := bytes.TrimSpace(m.ToolCalls)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrNoToolCalls
	}
	var calls []ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoToolCalls, err)
	}
	return calls, nil
}

// ToolResult answers one tool call
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Response is the webhook reply to a tool-calls message
type Response struct {
	Results []ToolResult `json:"results"`
}
