package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// RawRecord is the loosely-structured key-value payload delivered by a
// lifecycle hook. Leaves are strings, numbers, bools, or nested maps.
type RawRecord map[string]any

func (r RawRecord) str(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func (r RawRecord) boolean(key string) bool {
	v, _ := r[key].(bool)
	return v
}

// Classifier turns raw hook records into classified Events. Now is
// injectable so classification stays deterministic under test; nil
// falls back to time.Now.
type Classifier struct {
	// DefaultTeam is used when the record carries no team_id.
	DefaultTeam string

	// Anonymize replaces user IDs with a one-way hash at classification time.
	Anonymize bool

	// Now supplies the classification timestamp for records without one.
	Now func() time.Time
}

// Classify maps one raw record to one Event, deterministically. Missing
// or wrong-typed fields default to type-appropriate zero values; it
// never fails. Unknown event types pass through with empty detail.
func (c *Classifier) Classify(eventType string, raw RawRecord) Event {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	ev := Event{
		Type:      Type(eventType),
		Timestamp: parseTimestamp(raw.str("timestamp"), now),
		TeamID:    raw.str("team_id"),
		UserID:    raw.str("user_id"),
		Project:   raw.str("project"),
		SessionID: raw.str("session_id"),
	}
	if ev.TeamID == "" {
		ev.TeamID = c.DefaultTeam
	}
	if c.Anonymize && ev.UserID != "" {
		ev.UserID = AnonymizeUserID(ev.UserID)
	}

	switch ev.Type {
	case TypePreToolUse, TypePostToolUse:
		ev.ToolName = raw.str("tool_name")
		ev.Categories = ClassifyTool(ev.ToolName, raw["tool_input"])
		detail := &ToolDetail{ToolUseID: raw.str("tool_use_id")}
		if ev.Type == TypePostToolUse {
			ok := true
			ev.Success = &ok
			detail.OutputLength = len(stringify(raw["tool_response"]))
		}
		ev.Detail.Tool = detail

	case TypePostToolUseFailure:
		ev.ToolName = raw.str("tool_name")
		ev.Categories = ClassifyTool(ev.ToolName, raw["tool_input"])
		failed := false
		ev.Success = &failed
		ev.Detail.Tool = &ToolDetail{
			ToolUseID:   raw.str("tool_use_id"),
			Error:       raw.str("error"),
			IsInterrupt: raw.boolean("is_interrupt"),
		}

	case TypeUserPromptSubmit:
		ev.Detail.Prompt = &PromptDetail{PromptLength: len(raw.str("prompt"))}

	case TypeSessionStart:
		ev.Detail.Session = &SessionDetail{
			Source:    raw.str("source"),
			Model:     raw.str("model"),
			AgentType: raw.str("agent_type"),
		}

	case TypeSessionEnd:
		ev.Detail.Session = &SessionDetail{Reason: raw.str("reason")}
		ev.StopReason = DetectStopReason(raw.str("transcript_path"))

	case TypeSubagentStart, TypeSubagentStop:
		// Subagent boundaries are subagent activity regardless of tool name.
		ev.Categories.Subagent = true
		ev.Detail.Session = &SessionDetail{AgentType: raw.str("agent_type")}

	case TypeNotification:
		msg := raw.str("message")
		title := raw.str("title")
		ev.Detail.Notification = &NotificationDetail{Message: msg, Title: title}
		ev.IsUsageLimit = IsUsageLimitMessage(msg) || IsUsageLimitMessage(title)

	case TypeStop:
		ev.StopReason = DetectStopReason(raw.str("transcript_path"))
	}

	if ev.StopReason == StopUsageLimit {
		ev.IsUsageLimit = true
	}

	if len(raw) > 0 {
		if data, err := json.Marshal(raw); err == nil {
			ev.Payload = data
		}
	}

	return ev
}

// ClassifyTool derives the category flags for a tool invocation. The
// match is case-insensitive on the tool name; flags are independent and
// several may be set at once.
func ClassifyTool(toolName string, toolInput any) Categories {
	var cats Categories
	name := strings.ToLower(toolName)

	if strings.HasPrefix(name, "mcp__") || strings.Contains(stringify(toolInput), "mcp_server") {
		cats.MCP = true
	}
	if name == "bash" || name == "execute_bash" {
		cats.Command = true
	}
	switch name {
	case "read", "write", "edit", "multiedit", "glob", "grep", "ls":
		cats.FileOperation = true
	}
	if name == "task" || strings.HasPrefix(name, "task_") {
		cats.Subagent = true
	}
	if strings.HasPrefix(name, "notebook") {
		cats.Skill = true
	}

	return cats
}

// usageLimitKeywords are the phrases the tool emits when a usage or
// rate limit is hit. Substring match on lowercased text; a heuristic,
// not a parser.
var usageLimitKeywords = []string{
	"usage limit reached",
	"claude ai usage limit",
	"you have reached your usage limit",
	"you've reached your usage limit",
	"usage limit has been reached",
	"daily usage limit",
	"monthly usage limit",
	"rate limit reached",
	"api usage limit",
	"your claude.ai pro plan",
	"upgrade your plan",
	"usage has been exceeded",
}

// IsUsageLimitMessage reports whether text looks like a usage-limit
// notification.
func IsUsageLimitMessage(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range usageLimitKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

const (
	// stopReasonTailLines bounds how much of a transcript is inspected.
	stopReasonTailLines = 30

	// stopReasonTailBytes bounds how much of the file is read at all,
	// so large transcripts stay cheap to classify.
	stopReasonTailBytes = 64 * 1024
)

// DetectStopReason inspects the tail of the referenced transcript and
// classifies why the session stopped. Any read problem yields
// StopUnknown; this function never fails.
func DetectStopReason(transcriptPath string) StopReason {
	if transcriptPath == "" {
		return StopUnknown
	}

	tail, err := readTail(transcriptPath, stopReasonTailBytes)
	if err != nil {
		return StopUnknown
	}

	lines := strings.Split(tail, "\n")
	if len(lines) > stopReasonTailLines {
		lines = lines[len(lines)-stopReasonTailLines:]
	}

	if IsUsageLimitMessage(strings.Join(lines, " ")) {
		return StopUsageLimit
	}
	return StopNormal
}

// readTail returns at most maxBytes from the end of the file.
func readTail(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	offset := info.Size() - maxBytes
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AnonymizeUserID maps a user identifier to a stable one-way hash.
func AnonymizeUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])[:16]
}

// DisplayName derives the dashboard label for a user: the part of the
// ID before the first '@', or the full ID when there is none.
func DisplayName(userID string) string {
	if i := strings.Index(userID, "@"); i >= 0 {
		return userID[:i]
	}
	return userID
}

// parseTimestamp parses an RFC3339 timestamp, falling back to now.
func parseTimestamp(s string, now func() time.Time) time.Time {
	if s == "" {
		return now().UTC()
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC()
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC()
	}
	return now().UTC()
}

// stringify renders an arbitrary raw-record leaf for substring checks
// and length accounting.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}
