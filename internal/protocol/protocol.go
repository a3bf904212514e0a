// Package protocol defines the messages exchanged between the webhook and
// page runtimes, and the topic names they travel on.
package protocol

import (
	"fmt"
	"time"
)

// Event names
const (
	EventFunctionCall     = "function-call"
	EventFunctionResponse = "function-response"
	EventSessionInit      = "session-init"
	EventStatus           = "status"
)

// Fixed topics
const (
	TopicGlobalCommands  = "commands/global"
	TopicGlobalResponses = "responses/global"
	TopicDiscovery       = "discovery"
)

// CommandTopic is where calls addressed to sessionID are published
func CommandTopic(sessionID string) string { return "commands/" + sessionID }

// ResponseTopic is where the page owning sessionID publishes responses
func ResponseTopic(sessionID string) string { return "responses/" + sessionID }

// StatusTopic carries user-facing status notifications for sessionID
func StatusTopic(sessionID string) string { return "status/" + sessionID }

// FunctionCall is one command addressed to one session. Immutable once published.
type FunctionCall struct {
	FunctionName string         `json:"functionName"`
	Parameters   map[string]any `json:"parameters"`
	RequestID    string         `json:"requestId"`
	SessionID    string         `json:"sessionId"`
	ToolCallID   string         `json:"toolCallId,omitempty"`
	Timestamp    int64          `json:"timestamp"` // unix millis
}

// FunctionResponse answers exactly one FunctionCall, matched by RequestID.
type FunctionResponse struct {
	RequestID    string `json:"requestId"`
	FunctionName string `json:"functionName"`
	Result       any    `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
	Success      bool   `json:"success"`
}

// SessionInit announces a server-assigned call id on the discovery topic.
type SessionInit struct {
	CallID    string `json:"callId"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Status is a transient user-facing notification about a mutating command.
type Status struct {
	RequestID    string `json:"requestId"`
	FunctionName string `json:"functionName"`
	Message      string `json:"message"`
	Success      bool   `json:"success"`
	Timestamp    int64  `json:"timestamp"`
}

// NewRequestID derives a request id from a tool call id and the current time.
func NewRequestID(toolCallID string, now time.Time) string {
	return fmt.Sprintf("%s-%d", toolCallID, now.UnixMilli())
}

// Millis returns t as unix milliseconds
func Millis(t time.Time) int64 { return t.UnixMilli() }
