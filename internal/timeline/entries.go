package timeline

import (
	"encoding/json"
	"time"

	"github.com/sandboxed-sh/console/internal/event"
)

// Entry is one rendered item in a mission timeline.
//
// The set of kinds is closed; view layers switch over it exhaustively.
type Entry interface {
	isEntry()
}

// UserMessage is a message authored by the user.
type UserMessage struct {
	ID        string
	Content   string
	Timestamp time.Time
}

func (UserMessage) isEntry() {}

// AssistantMessage is a completed assistant reply.
type AssistantMessage struct {
	ID          string
	Content     string
	Timestamp   time.Time
	Success     bool
	CostCents   int64
	CostSource  string
	Model       string
	SharedFiles []event.SharedFile
}

func (AssistantMessage) isEntry() {}

// ThinkingBlock is the agent's streamed reasoning. While Done is false the
// block is open and its content is replaced in place by later chunks.
type ThinkingBlock struct {
	ID        string
	Content   string
	StartTime time.Time
	Done      bool
}

func (ThinkingBlock) isEntry() {}

// PhaseMarker is the ephemeral "what the agent is doing" indicator. At most
// one marker is live at a time.
type PhaseMarker struct {
	Phase     string
	Detail    string
	Agent     string
	Timestamp time.Time
}

func (PhaseMarker) isEntry() {}

// ToolState is the lifecycle state of a tool call entry.
type ToolState string

const (
	ToolRunning   ToolState = "running"
	ToolSuccess   ToolState = "success"
	ToolError     ToolState = "error"
	ToolCancelled ToolState = "cancelled"
)

// ToolCall is a plain tool invocation with its eventual result.
type ToolCall struct {
	ToolCallID string
	Name       string
	Args       json.RawMessage
	State      ToolState
	StartTime  time.Time
	EndTime    time.Time
	Result     json.RawMessage
}

func (ToolCall) isEntry() {}

// ToolUIWidget is a tool call whose name marks it as a structured UI
// directive (ui_ prefix). Widgets render specially and are never grouped
// with plain tool calls.
type ToolUIWidget struct {
	ToolCallID string
	Name       string
	Parsed     map[string]any
	Timestamp  time.Time
}

func (ToolUIWidget) isEntry() {}

// ErrorNotice is a user-visible error surfaced into the timeline.
type ErrorNotice struct {
	ID        string
	Message   string
	Timestamp time.Time
}

func (ErrorNotice) isEntry() {}

// ProgressInfo is the current subtask progress indicator. It lives next to
// the timeline rather than in it.
type ProgressInfo struct {
	TotalSubtasks     int
	CompletedSubtasks int
	CurrentSubtask    string
	Depth             int
}
