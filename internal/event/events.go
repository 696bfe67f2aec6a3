// Package event defines the vocabulary of events exchanged with the
// Sandboxed.sh backend: the named stream events and the stored-event records
// returned by the history-replay endpoint.
//
// All JSON decoding happens here, at the boundary. The reconciler operates on
// the closed union only and never touches raw payload maps.
package event

import (
	"encoding/json"
	"strings"
)

// Type names a stream event.
type Type string

const (
	TypeStatus               Type = "status"
	TypeUserMessage          Type = "user_message"
	TypeAssistantMessage     Type = "assistant_message"
	TypeThinking             Type = "thinking"
	TypeAgentPhase           Type = "agent_phase"
	TypeProgress             Type = "progress"
	TypeError                Type = "error"
	TypeToolCall             Type = "tool_call"
	TypeToolResult           Type = "tool_result"
	TypeMissionStatusChanged Type = "mission_status_changed"
	TypeMissionTitleChanged  Type = "mission_title_changed"

	// TypeTextDelta appears only in stored history; the live stream folds
	// deltas into the final assistant_message.
	TypeTextDelta Type = "text_delta"
)

// Event is the closed union of decoded stream payloads.
type Event interface {
	// EventType returns the wire name of the event.
	EventType() Type
	// MissionID returns the mission scope carried by the event, or "" when
	// the event is unscoped (main session).
	MissionID() string
}

// RunState is the control-session run state carried by status events.
type RunState string

const (
	RunIdle           RunState = "idle"
	RunRunning        RunState = "running"
	RunWaitingForTool RunState = "waiting_for_tool"
)

// MissionStatus is the lifecycle status of a mission.
type MissionStatus string

const (
	StatusPending     MissionStatus = "pending"
	StatusActive      MissionStatus = "active"
	StatusCompleted   MissionStatus = "completed"
	StatusFailed      MissionStatus = "failed"
	StatusInterrupted MissionStatus = "interrupted"
	StatusBlocked     MissionStatus = "blocked"
	StatusNotFeasible MissionStatus = "not_feasible"
	StatusUnknown     MissionStatus = "unknown"
)

// ParseMissionStatus maps a wire status string onto the known set.
//
// Unrecognized values map to StatusUnknown rather than failing; a newer server
// must not break older clients.
func ParseMissionStatus(raw string) MissionStatus {
	switch MissionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending, StatusActive, StatusCompleted, StatusFailed,
		StatusInterrupted, StatusBlocked, StatusNotFeasible:
		return MissionStatus(strings.ToLower(strings.TrimSpace(raw)))
	default:
		return StatusUnknown
	}
}

// Status is the global run-state snapshot for a session.
type Status struct {
	State    RunState `json:"state"`
	QueueLen int      `json:"queue_len"`
	Mission  string   `json:"mission_id,omitempty"`
}

func (Status) EventType() Type     { return TypeStatus }
func (e Status) MissionID() string { return e.Mission }

// UserMessage is a server-confirmed user message.
type UserMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Mission string `json:"mission_id,omitempty"`
}

func (UserMessage) EventType() Type     { return TypeUserMessage }
func (e UserMessage) MissionID() string { return e.Mission }

// SharedFile is a file attached to an assistant message.
type SharedFile struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	Kind        string `json:"kind"`
}

// valid reports whether the file carries every required field.
func (f SharedFile) valid() bool {
	return f.Name != "" && f.URL != "" && f.ContentType != "" && f.Kind != ""
}

// AssistantMessage is a completed assistant reply.
type AssistantMessage struct {
	ID          string
	Content     string
	Success     bool
	CostCents   int64
	CostSource  string
	Model       string
	SharedFiles []SharedFile
	Mission     string
}

func (AssistantMessage) EventType() Type     { return TypeAssistantMessage }
func (e AssistantMessage) MissionID() string { return e.Mission }

// UnmarshalJSON accepts both the flat cost fields (cost_cents, cost_source)
// and the nested cost object ({amount_cents, source}) emitted by newer
// backends. Shared files missing required fields are dropped individually.
func (e *AssistantMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string `json:"id"`
		Content    string `json:"content"`
		Success    *bool  `json:"success"`
		CostCents  *int64 `json:"cost_cents"`
		CostSource string `json:"cost_source"`
		Cost       *struct {
			AmountCents int64  `json:"amount_cents"`
			Source      string `json:"source"`
		} `json:"cost"`
		Model       string       `json:"model"`
		SharedFiles []SharedFile `json:"shared_files"`
		Mission     string       `json:"mission_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.ID = raw.ID
	e.Content = raw.Content
	e.Success = raw.Success == nil || *raw.Success
	e.Model = raw.Model
	e.Mission = raw.Mission

	if raw.CostCents != nil {
		e.CostCents = *raw.CostCents
		e.CostSource = raw.CostSource
	} else if raw.Cost != nil {
		e.CostCents = raw.Cost.AmountCents
		e.CostSource = raw.Cost.Source
	}

	e.SharedFiles = nil
	for _, f := range raw.SharedFiles {
		if f.valid() {
			e.SharedFiles = append(e.SharedFiles, f)
		}
	}
	return nil
}

// Thinking is an incremental reasoning chunk.
type Thinking struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Mission string `json:"mission_id,omitempty"`
}

func (Thinking) EventType() Type     { return TypeThinking }
func (e Thinking) MissionID() string { return e.Mission }

// AgentPhase marks a preparation/execution phase transition.
type AgentPhase struct {
	Phase   string `json:"phase"`
	Detail  string `json:"detail,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Mission string `json:"mission_id,omitempty"`
}

func (AgentPhase) EventType() Type     { return TypeAgentPhase }
func (e AgentPhase) MissionID() string { return e.Mission }

// Progress is a subtask progress snapshot.
type Progress struct {
	TotalSubtasks     int    `json:"total_subtasks"`
	CompletedSubtasks int    `json:"completed_subtasks"`
	CurrentSubtask    string `json:"current_subtask,omitempty"`
	Depth             int    `json:"-"`
	Mission           string `json:"mission_id,omitempty"`
}

func (Progress) EventType() Type     { return TypeProgress }
func (e Progress) MissionID() string { return e.Mission }

// UnmarshalJSON accepts both "depth" and the older "current_depth" field.
func (e *Progress) UnmarshalJSON(data []byte) error {
	type plain Progress
	var raw struct {
		plain
		Depth        *int `json:"depth"`
		CurrentDepth *int `json:"current_depth"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Progress(raw.plain)
	switch {
	case raw.Depth != nil:
		e.Depth = *raw.Depth
	case raw.CurrentDepth != nil:
		e.Depth = *raw.CurrentDepth
	}
	return nil
}

// Error is an error message emitted by the session.
type Error struct {
	Message string `json:"message"`
	Mission string `json:"mission_id,omitempty"`
}

func (Error) EventType() Type     { return TypeError }
func (e Error) MissionID() string { return e.Mission }

// ToolCall announces a tool invocation.
type ToolCall struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
	Mission    string          `json:"mission_id,omitempty"`
}

func (ToolCall) EventType() Type     { return TypeToolCall }
func (e ToolCall) MissionID() string { return e.Mission }

// ToolResult completes a previously announced tool call.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name,omitempty"`
	Result     json.RawMessage `json:"result"`
	Mission    string          `json:"mission_id,omitempty"`
}

func (ToolResult) EventType() Type     { return TypeToolResult }
func (e ToolResult) MissionID() string { return e.Mission }

// MissionStatusChanged reports a mission lifecycle transition.
type MissionStatusChanged struct {
	Mission string `json:"mission_id"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
}

func (MissionStatusChanged) EventType() Type     { return TypeMissionStatusChanged }
func (e MissionStatusChanged) MissionID() string { return e.Mission }

// MissionTitleChanged reports a mission title update.
type MissionTitleChanged struct {
	Mission string `json:"mission_id"`
	Title   string `json:"title"`
}

func (MissionTitleChanged) EventType() Type     { return TypeMissionTitleChanged }
func (e MissionTitleChanged) MissionID() string { return e.Mission }
