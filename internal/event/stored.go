package event

import (
	"encoding/json"
	"sort"
	"strconv"
)

// StoredEvent is one persisted mission event as returned by the
// history-replay endpoint (GET /api/control/missions/:id/events).
type StoredEvent struct {
	ID         int64           `json:"id"`
	MissionID  string          `json:"mission_id"`
	Sequence   int64           `json:"sequence"`
	EventType  Type            `json:"event_type"`
	Timestamp  string          `json:"timestamp"`
	EventID    string          `json:"event_id,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Content    string          `json:"content"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// ReplayTypes is the event-type filter requested for history replay.
var ReplayTypes = []Type{
	TypeUserMessage,
	TypeAssistantMessage,
	TypeToolCall,
	TypeToolResult,
	TypeTextDelta,
	TypeThinking,
}

// SortStored orders stored events deterministically by
// (sequence, timestamp, id) so replay reconstruction does not depend on
// server delivery order.
func SortStored(events []StoredEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.ID < b.ID
	})
}

// storedMeta is the metadata envelope persisted alongside message events.
type storedMeta struct {
	Success     *bool        `json:"success"`
	CostCents   int64        `json:"cost_cents"`
	CostSource  string       `json:"cost_source"`
	Model       string       `json:"model"`
	SharedFiles []SharedFile `json:"shared_files"`
	Done        *bool        `json:"done"`
}

// Decode converts a stored record into the stream-event union so history
// replay flows through the same reconciler as live events.
//
// The second return is false for record types replay skips entirely
// (text deltas, which the final assistant_message supersedes, and any type
// outside the union).
func (s StoredEvent) Decode() (Event, bool) {
	var meta storedMeta
	if len(s.Metadata) > 0 {
		// Metadata is best-effort; a corrupt envelope degrades to defaults
		// rather than dropping the record.
		_ = json.Unmarshal(s.Metadata, &meta)
	}

	switch s.EventType {
	case TypeUserMessage:
		return UserMessage{ID: s.eventID(), Content: s.Content, Mission: s.MissionID}, true
	case TypeAssistantMessage:
		files := make([]SharedFile, 0, len(meta.SharedFiles))
		for _, f := range meta.SharedFiles {
			if f.valid() {
				files = append(files, f)
			}
		}
		if len(files) == 0 {
			files = nil
		}
		return AssistantMessage{
			ID:          s.eventID(),
			Content:     s.Content,
			Success:     meta.Success == nil || *meta.Success,
			CostCents:   meta.CostCents,
			CostSource:  meta.CostSource,
			Model:       meta.Model,
			SharedFiles: files,
			Mission:     s.MissionID,
		}, true
	case TypeThinking:
		// Stored thinking rows are complete chunks; absent "done" means the
		// thought finished before it was persisted.
		done := meta.Done == nil || *meta.Done
		return Thinking{Content: s.Content, Done: done, Mission: s.MissionID}, true
	case TypeToolCall:
		return ToolCall{
			ToolCallID: s.ToolCallID,
			Name:       s.ToolName,
			Args:       rawOrString(s.Content),
			Mission:    s.MissionID,
		}, true
	case TypeToolResult:
		return ToolResult{
			ToolCallID: s.ToolCallID,
			Name:       s.ToolName,
			Result:     rawOrString(s.Content),
			Mission:    s.MissionID,
		}, true
	default:
		return nil, false
	}
}

// eventID prefers the server-assigned event id and falls back to a synthetic
// id derived from the row id, so replayed entries stay individually addressable.
func (s StoredEvent) eventID() string {
	if s.EventID != "" {
		return s.EventID
	}
	return "stored-" + s.MissionID + "-" + strconv.FormatInt(s.ID, 10)
}

// rawOrString returns content as raw JSON when it already is JSON, and as a
// JSON string otherwise.
func rawOrString(content string) json.RawMessage {
	if json.Valid([]byte(content)) && content != "" {
		return json.RawMessage(content)
	}
	quoted, err := json.Marshal(content)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return quoted
}
