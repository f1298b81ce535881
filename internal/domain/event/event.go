// Package event defines the classified usage event and the rules that
// derive it from a raw lifecycle-hook record.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of lifecycle hook that produced an event.
type Type string

const (
	TypePreToolUse         Type = "PreToolUse"
	TypePostToolUse        Type = "PostToolUse"
	TypePostToolUseFailure Type = "PostToolUseFailure"
	TypeUserPromptSubmit   Type = "UserPromptSubmit"
	TypeSessionStart       Type = "SessionStart"
	TypeSessionEnd         Type = "SessionEnd"
	TypeSubagentStart      Type = "SubagentStart"
	TypeSubagentStop       Type = "SubagentStop"
	TypeNotification       Type = "Notification"
	TypePreCompact         Type = "PreCompact"
	TypeStop               Type = "Stop"
)

// StopReason classifies why a session ended.
type StopReason string

const (
	StopNormal     StopReason = "normal"
	StopUsageLimit StopReason = "usage_limit"
	StopUnknown    StopReason = "unknown"
)

// Categories is the set of independent category flags derived once at
// classification time. Multiple flags may be true for the same event.
type Categories struct {
	Skill         bool `json:"skill"`
	Subagent      bool `json:"subagent"`
	MCP           bool `json:"mcp"`
	Command       bool `json:"command"`
	FileOperation bool `json:"file_operation"`
}

// ToolDetail carries fields present on tool events.
type ToolDetail struct {
	ToolUseID    string `json:"tool_use_id,omitempty"`
	OutputLength int    `json:"output_length,omitempty"`
	Error        string `json:"error,omitempty"`
	IsInterrupt  bool   `json:"is_interrupt,omitempty"`
}

// PromptDetail carries fields present on UserPromptSubmit events.
type PromptDetail struct {
	PromptLength int `json:"prompt_length"`
}

// SessionDetail carries fields present on session boundary events.
type SessionDetail struct {
	Source    string `json:"source,omitempty"`
	Model     string `json:"model,omitempty"`
	AgentType string `json:"agent_type,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// NotificationDetail carries fields present on Notification events.
type NotificationDetail struct {
	Message string `json:"message,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Detail is a tagged union of the per-type auxiliary fields. At most
// one member is non-nil, selected by the event's Type.
type Detail struct {
	Tool         *ToolDetail         `json:"tool,omitempty"`
	Prompt       *PromptDetail       `json:"prompt,omitempty"`
	Session      *SessionDetail      `json:"session,omitempty"`
	Notification *NotificationDetail `json:"notification,omitempty"`
}

// Event is one classified, immutable usage record. Category flags and
// the stop reason are computed once at classification time and never
// recomputed by queries.
type Event struct {
	ID           string          `json:"id"`
	Type         Type            `json:"event_type"`
	Timestamp    time.Time       `json:"timestamp"`
	TeamID       string          `json:"team_id"`
	UserID       string          `json:"user_id"`
	Project      string          `json:"project"`
	SessionID    string          `json:"session_id"`
	ToolName     string          `json:"tool_name,omitempty"`
	Categories   Categories      `json:"categories"`
	Success      *bool           `json:"success,omitempty"`
	StopReason   StopReason      `json:"stop_reason,omitempty"`
	IsUsageLimit bool            `json:"is_usage_limit"`
	Detail       Detail          `json:"detail"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ReceivedAt   time.Time       `json:"received_at"`
}

// IsToolEvent reports whether the event came from a tool hook.
func (e *Event) IsToolEvent() bool {
	switch e.Type {
	case TypePreToolUse, TypePostToolUse, TypePostToolUseFailure:
		return true
	}
	return false
}
