package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sandboxed-sh/console/internal/event"
)

// ApplyOptions carry the per-application context the reducer is not allowed
// to obtain itself (wall clock, replay flag).
type ApplyOptions struct {
	// Replay marks history reconstruction. Replay suppresses all side
	// effects and uses stored timestamps instead of arrival time.
	Replay bool
	// Now is the arrival time for live events, or the stored timestamp for
	// replayed ones.
	Now time.Time
}

// Apply folds one event into the timeline and returns the next state.
//
// Apply is deterministic and free of I/O; events out of the viewed mission's
// scope return the state unchanged.
func Apply(s State, ev event.Event, opts ApplyOptions) State {
	if !inScope(s, ev) {
		return s
	}

	switch e := ev.(type) {
	case event.Status:
		return applyStatus(s, e)
	case event.UserMessage:
		return applyUserMessage(s, e, opts.Now)
	case event.AssistantMessage:
		return applyAssistantMessage(s, e, opts.Now)
	case event.Thinking:
		return applyThinking(s, e, opts.Now)
	case event.AgentPhase:
		return applyAgentPhase(s, e, opts.Now)
	case event.Progress:
		return applyProgress(s, e)
	case event.Error:
		return applyError(s, e, opts.Now)
	case event.ToolCall:
		return applyToolCall(s, e, opts)
	case event.ToolResult:
		return applyToolResult(s, e, opts.Now)
	case event.MissionStatusChanged:
		return applyMissionStatusChanged(s, e, opts.Now)
	case event.MissionTitleChanged:
		// Title changes touch mission metadata only; the console layer
		// owns that.
		return s
	default:
		return s
	}
}

// inScope implements the mission-scope filter.
//
// Status and mission metadata events are globally visible (status applies its
// own narrower rule). For the rest: an event with an explicit mission id must
// match the viewed mission (or the current mission when nothing is viewed
// yet); an unscoped event is dropped only when a viewed and a current mission
// are both known and differ.
func inScope(s State, ev event.Event) bool {
	switch ev.(type) {
	case event.Status, event.MissionStatusChanged, event.MissionTitleChanged:
		return true
	}

	mission := ev.MissionID()
	if mission == "" {
		return s.ViewedMissionID == "" || s.CurrentMissionID == "" ||
			s.ViewedMissionID == s.CurrentMissionID
	}
	if s.ViewedMissionID != "" {
		return mission == s.ViewedMissionID
	}
	if s.CurrentMissionID != "" {
		return mission == s.CurrentMissionID
	}
	// No mission context yet; accept rather than lose the session opener.
	return true
}

func applyStatus(s State, e event.Status) State {
	// A scoped status only applies while its mission is the one viewed; an
	// unscoped status belongs to the main session and applies unless the
	// viewed mission is known to be a different one.
	if e.Mission != "" {
		if e.Mission != s.ViewedMissionID {
			return s
		}
	} else if s.ViewedMissionID != "" && s.CurrentMissionID != "" &&
		s.ViewedMissionID != s.CurrentMissionID {
		return s
	}

	s.Run = e.State
	s.QueueLen = e.QueueLen
	if e.State == event.RunIdle {
		s.Progress = nil
		s.Entries = removeWidgets(s.Entries)
	}
	return s
}

func applyUserMessage(s State, e event.UserMessage, now time.Time) State {
	// Idempotent on id: the stream can redeliver after a reconnect.
	if idx := indexByID(s.Entries, e.ID); idx >= 0 {
		return s
	}

	// Confirmation path: collapse onto a matching optimistic entry,
	// keeping the locally displayed timestamp.
	for i, entry := range s.Entries {
		um, ok := entry.(UserMessage)
		if !ok || !strings.HasPrefix(um.ID, tempIDPrefix) || um.Content != e.Content {
			continue
		}
		entries := cloneEntries(s.Entries)
		um.ID = e.ID
		entries[i] = um
		s.Entries = entries
		return s
	}

	// A message sent from another client.
	s.Entries = append(cloneEntries(s.Entries), UserMessage{
		ID:        e.ID,
		Content:   e.Content,
		Timestamp: now,
	})
	return s
}

func applyAssistantMessage(s State, e event.AssistantMessage, now time.Time) State {
	entries := cloneEntries(s.Entries)
	entries = removeOpenThinking(entries)
	entries = removePhaseMarker(entries)
	// An assistant reply implies all announced tool calls concluded.
	entries = finishRunningTools(entries, ToolSuccess, now)

	entries = append(entries, AssistantMessage{
		ID:          e.ID,
		Content:     e.Content,
		Timestamp:   now,
		Success:     e.Success,
		CostCents:   e.CostCents,
		CostSource:  e.CostSource,
		Model:       e.Model,
		SharedFiles: e.SharedFiles,
	})
	s.Entries = entries
	return s
}

func applyThinking(s State, e event.Thinking, now time.Time) State {
	if strings.TrimSpace(e.Content) == "" {
		return s
	}

	entries := removePhaseMarker(cloneEntries(s.Entries))

	if idx := indexOpenThinking(entries); idx >= 0 {
		tb := entries[idx].(ThinkingBlock)
		tb.Content = e.Content
		tb.Done = e.Done
		entries[idx] = tb
		s.Entries = entries
		return s
	}

	// No open block: the client joined mid-thought (or the previous block
	// was already closed), so start a new one.
	s.ThinkingSeq++
	entries = append(entries, ThinkingBlock{
		ID:        fmt.Sprintf("thinking-%d", s.ThinkingSeq),
		Content:   e.Content,
		StartTime: now,
		Done:      e.Done,
	})
	s.Entries = entries
	return s
}

func applyAgentPhase(s State, e event.AgentPhase, now time.Time) State {
	entries := removePhaseMarker(cloneEntries(s.Entries))
	entries = append(entries, PhaseMarker{
		Phase:     e.Phase,
		Detail:    e.Detail,
		Agent:     e.Agent,
		Timestamp: now,
	})
	s.Entries = entries
	return s
}

func applyProgress(s State, e event.Progress) State {
	if e.TotalSubtasks <= 0 {
		return s
	}
	s.Progress = &ProgressInfo{
		TotalSubtasks:     e.TotalSubtasks,
		CompletedSubtasks: e.CompletedSubtasks,
		CurrentSubtask:    e.CurrentSubtask,
		Depth:             e.Depth,
	}
	return s
}

func applyError(s State, e event.Error, now time.Time) State {
	if isTransportNoise(e.Message) {
		return s
	}
	s.NoticeSeq++
	s.Entries = append(cloneEntries(s.Entries), ErrorNotice{
		ID:        fmt.Sprintf("error-%d", s.NoticeSeq),
		Message:   e.Message,
		Timestamp: now,
	})
	return s
}

func applyToolCall(s State, e event.ToolCall, opts ApplyOptions) State {
	if isToolUI(e.Name) {
		var parsed map[string]any
		if err := json.Unmarshal(e.Args, &parsed); err != nil {
			// Unparseable UI directives are dropped whole; there is
			// nothing renderable in them.
			return s
		}
		s.Entries = append(cloneEntries(s.Entries), ToolUIWidget{
			ToolCallID: e.ToolCallID,
			Name:       e.Name,
			Parsed:     parsed,
			Timestamp:  opts.Now,
		})
		return s
	}

	entries := cloneEntries(s.Entries)
	// Only one plain tool call is active per mission; a new announcement
	// implicitly concludes the previous one.
	entries = finishRunningTools(entries, ToolSuccess, opts.Now)
	entries = append(entries, ToolCall{
		ToolCallID: e.ToolCallID,
		Name:       e.Name,
		Args:       e.Args,
		State:      ToolRunning,
		StartTime:  opts.Now,
	})
	s.Entries = entries

	if isDesktopTool(e.Name) && !opts.Replay {
		s.Effects = append(s.Effects, OpenDesktopStream{
			ToolCallID: e.ToolCallID,
			Name:       e.Name,
			Args:       []byte(e.Args),
		})
	}
	return s
}

func applyToolResult(s State, e event.ToolResult, now time.Time) State {
	for i, entry := range s.Entries {
		tc, ok := entry.(ToolCall)
		if !ok || tc.ToolCallID != e.ToolCallID || tc.State != ToolRunning {
			continue
		}
		entries := cloneEntries(s.Entries)
		tc.State = classifyToolResult(e.Result)
		tc.EndTime = now
		tc.Result = e.Result
		entries[i] = tc
		s.Entries = entries
		return s
	}
	// No matching in-flight call: already resolved, or for a call this
	// client never saw. Dropped.
	return s
}

func applyMissionStatusChanged(s State, e event.MissionStatusChanged, now time.Time) State {
	if e.Mission != s.ViewedMissionID {
		return s
	}
	if event.ParseMissionStatus(e.Status) == event.StatusActive {
		return s
	}
	// The mission stopped; whatever was still running was cut short.
	s.Entries = finishRunningTools(cloneEntries(s.Entries), ToolCancelled, now)
	return s
}

// Rebuild reconstructs a timeline from stored history. Records are ordered
// by (sequence, timestamp, id) before application so reconstruction is
// deterministic regardless of server delivery order.
func Rebuild(viewedMissionID string, stored []event.StoredEvent) State {
	records := make([]event.StoredEvent, len(stored))
	copy(records, stored)
	event.SortStored(records)

	s := NewState(viewedMissionID)
	for _, rec := range records {
		ev, ok := rec.Decode()
		if !ok {
			continue
		}
		s = Apply(s, ev, ApplyOptions{Replay: true, Now: parseStoredTime(rec.Timestamp)})
	}
	return s
}

func parseStoredTime(raw string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	return time.Time{}
}

// --- entry slice helpers (operate in place on an already cloned slice) ---

func indexByID(entries []Entry, id string) int {
	if id == "" {
		return -1
	}
	for i, e := range entries {
		if entryID(e) == id {
			return i
		}
	}
	return -1
}

func indexOpenThinking(entries []Entry) int {
	for i, e := range entries {
		if tb, ok := e.(ThinkingBlock); ok && !tb.Done {
			return i
		}
	}
	return -1
}

func removeOpenThinking(entries []Entry) []Entry {
	if idx := indexOpenThinking(entries); idx >= 0 {
		return append(entries[:idx], entries[idx+1:]...)
	}
	return entries
}

func removePhaseMarker(entries []Entry) []Entry {
	for i, e := range entries {
		if _, ok := e.(PhaseMarker); ok {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

func removeWidgets(entries []Entry) []Entry {
	out := entries[:0:0]
	changed := false
	for _, e := range entries {
		if _, ok := e.(ToolUIWidget); ok {
			changed = true
			continue
		}
		out = append(out, e)
	}
	if !changed {
		return entries
	}
	return out
}

func finishRunningTools(entries []Entry, final ToolState, now time.Time) []Entry {
	for i, e := range entries {
		tc, ok := e.(ToolCall)
		if !ok || tc.State != ToolRunning {
			continue
		}
		tc.State = final
		tc.EndTime = now
		entries[i] = tc
	}
	return entries
}
