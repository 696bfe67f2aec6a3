package timeline

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/sandboxed-sh/console/internal/event"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func applyLive(s State, ev event.Event) State {
	return Apply(s, ev, ApplyOptions{Now: testNow})
}

func TestUserMessageIdempotentOnID(t *testing.T) {
	s := NewState("m1")
	msg := event.UserMessage{ID: "u1", Content: "hello", Mission: "m1"}

	s = applyLive(s, msg)
	s = applyLive(s, msg)

	if len(s.Entries) != 1 {
		t.Fatalf("expected 1 entry after duplicate delivery, got %d", len(s.Entries))
	}
}

func TestOptimisticUserMessageCollapse(t *testing.T) {
	sent := testNow.Add(-2 * time.Second)
	s := NewState("m1")
	s = AddOptimisticUserMessage(s, "run the tests", sent)

	um := s.Entries[0].(UserMessage)
	if um.ID != "temp-1" {
		t.Fatalf("optimistic id = %q, want temp-1", um.ID)
	}

	s = applyLive(s, event.UserMessage{ID: "u42", Content: "run the tests", Mission: "m1"})

	if len(s.Entries) != 1 {
		t.Fatalf("confirmation duplicated the entry: %d entries", len(s.Entries))
	}
	um = s.Entries[0].(UserMessage)
	if um.ID != "u42" {
		t.Fatalf("confirmed id = %q, want u42", um.ID)
	}
	if !um.Timestamp.Equal(sent) {
		t.Fatalf("confirmation replaced the local timestamp: %v", um.Timestamp)
	}
}

func TestOptimisticCollapseRequiresMatchingContent(t *testing.T) {
	s := NewState("m1")
	s = AddOptimisticUserMessage(s, "first", testNow)

	s = applyLive(s, event.UserMessage{ID: "u1", Content: "different", Mission: "m1"})

	if len(s.Entries) != 2 {
		t.Fatalf("expected optimistic entry to survive, got %d entries", len(s.Entries))
	}
	if s.Entries[0].(UserMessage).ID != "temp-1" {
		t.Fatalf("optimistic entry was overwritten")
	}
}

func TestThinkingLifecycle(t *testing.T) {
	s := NewState("m1")

	s = applyLive(s, event.Thinking{Content: "let me check", Mission: "m1"})
	s = applyLive(s, event.Thinking{Content: "let me check the config", Mission: "m1"})

	if len(s.Entries) != 1 {
		t.Fatalf("open thinking should update in place, got %d entries", len(s.Entries))
	}
	tb := s.Entries[0].(ThinkingBlock)
	if tb.Content != "let me check the config" || tb.Done {
		t.Fatalf("unexpected open block: %+v", tb)
	}

	s = applyLive(s, event.Thinking{Content: "checked", Done: true, Mission: "m1"})
	if tb := s.Entries[0].(ThinkingBlock); !tb.Done {
		t.Fatalf("block not closed")
	}

	// A closed block stays; the next chunk opens a fresh one.
	s = applyLive(s, event.Thinking{Content: "new thought", Mission: "m1"})
	if len(s.Entries) != 2 {
		t.Fatalf("expected a second block after close, got %d entries", len(s.Entries))
	}
}

func TestThinkingIgnoresWhitespace(t *testing.T) {
	s := NewState("m1")
	s = applyLive(s, event.Thinking{Content: "  \n\t ", Mission: "m1"})
	if len(s.Entries) != 0 {
		t.Fatalf("whitespace-only thinking created an entry")
	}
}

func TestAssistantMessageClosesOpenWork(t *testing.T) {
	s := NewState("m1")
	s = applyLive(s, event.Thinking{Content: "thinking", Mission: "m1"})
	s = applyLive(s, event.AgentPhase{Phase: "executing", Mission: "m1"})
	s = applyLive(s, event.ToolCall{ToolCallID: "t1", Name: "bash", Args: json.RawMessage(`{}`), Mission: "m1"})

	s = applyLive(s, event.AssistantMessage{ID: "a1", Content: "done", Success: true, Mission: "m1"})

	for _, e := range s.Entries {
		switch v := e.(type) {
		case ThinkingBlock:
			if !v.Done {
				t.Fatalf("open thinking block survived assistant message")
			}
		case PhaseMarker:
			t.Fatalf("phase marker survived assistant message")
		case ToolCall:
			if v.State != ToolSuccess {
				t.Fatalf("running tool call not finished: %v", v.State)
			}
		}
	}
	last := s.Entries[len(s.Entries)-1]
	if am, ok := last.(AssistantMessage); !ok || am.ID != "a1" {
		t.Fatalf("assistant message not appended last: %+v", last)
	}
}

func TestSinglePhaseMarker(t *testing.T) {
	s := NewState("m1")
	s = applyLive(s, event.AgentPhase{Phase: "planning", Mission: "m1"})
	s = applyLive(s, event.AgentPhase{Phase: "executing", Detail: "step 2", Mission: "m1"})

	markers := 0
	for _, e := range s.Entries {
		if pm, ok := e.(PhaseMarker); ok {
			markers++
			if pm.Phase != "executing" {
				t.Fatalf("stale marker kept: %+v", pm)
			}
		}
	}
	if markers != 1 {
		t.Fatalf("got %d phase markers, want 1", markers)
	}
}

func TestToolCallResultPairing(t *testing.T) {
	s := NewState("m1")
	s = applyLive(s, event.ToolCall{ToolCallID: "t1", Name: "bash", Args: json.RawMessage(`{"cmd":"ls"}`), Mission: "m1"})

	tc := s.Entries[0].(ToolCall)
	if tc.State != ToolRunning {
		t.Fatalf("fresh tool call state = %v", tc.State)
	}

	s = applyLive(s, event.ToolResult{ToolCallID: "t1", Result: json.RawMessage(`{"output":"ok"}`), Mission: "m1"})

	tc = s.Entries[0].(ToolCall)
	if tc.State != ToolSuccess {
		t.Fatalf("resolved state = %v, want success", tc.State)
	}
	if tc.EndTime.IsZero() {
		t.Fatalf("end time not set")
	}
}

func TestToolResultWithoutCallIsDropped(t *testing.T) {
	s := NewState("m1")
	before := s
	s = applyLive(s, event.ToolResult{ToolCallID: "ghost", Result: json.RawMessage(`"ok"`), Mission: "m1"})
	if !reflect.DeepEqual(s.Entries, before.Entries) {
		t.Fatalf("unmatched tool result changed the timeline")
	}
}

func TestNewToolCallFinishesPrevious(t *testing.T) {
	s := NewState("m1")
	s = applyLive(s, event.ToolCall{ToolCallID: "t1", Name: "bash", Mission: "m1"})
	s = applyLive(s, event.ToolCall{ToolCallID: "t2", Name: "read_file", Mission: "m1"})

	first := s.Entries[0].(ToolCall)
	second := s.Entries[1].(ToolCall)
	if first.State != ToolSuccess {
		t.Fatalf("previous call state = %v, want success", first.State)
	}
	if second.State != ToolRunning {
		t.Fatalf("new call state = %v, want running", second.State)
	}
}

func TestClassifyToolResult(t *testing.T) {
	cases := []struct {
		name   string
		result string
		want   ToolState
	}{
		{"plain text", `"all good"`, ToolSuccess},
		{"cancelled string", `"cancelled"`, ToolCancelled},
		{"canceled string", `"canceled"`, ToolCancelled},
		{"error prefix", `"Error: no such file"`, ToolError},
		{"status cancelled", `{"status":"cancelled"}`, ToolCancelled},
		{"status failed", `{"status":"failed"}`, ToolError},
		{"is_error", `{"is_error":true,"content":"boom"}`, ToolError},
		{"error field", `{"error":"timeout"}`, ToolError},
		{"null error field", `{"error":null,"output":"ok"}`, ToolSuccess},
		{"success false", `{"success":false}`, ToolError},
		{"success true", `{"success":true}`, ToolSuccess},
		{"empty", ``, ToolSuccess},
		{"null", `null`, ToolSuccess},
		{"array", `[1,2,3]`, ToolSuccess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyToolResult(json.RawMessage(tc.result))
			if got != tc.want {
				t.Fatalf("classify(%s) = %v, want %v", tc.result, got, tc.want)
			}
		})
	}
}

func TestStatusIdleClearsProgressAndWidgets(t *testing.T) {
	s := NewState("")
	s = applyLive(s, event.Progress{TotalSubtasks: 4, CompletedSubtasks: 1})
	s = applyLive(s, event.ToolCall{ToolCallID: "w1", Name: "ui_optionList", Args: json.RawMessage(`{"options":["a","b"]}`)})
	s = applyLive(s, event.UserMessage{ID: "u1", Content: "hi"})

	if s.Progress == nil {
		t.Fatalf("progress not set")
	}
	if _, ok := s.Entries[0].(ToolUIWidget); !ok {
		t.Fatalf("widget not appended")
	}

	s = applyLive(s, event.Status{State: event.RunIdle})

	if s.Progress != nil {
		t.Fatalf("idle did not clear progress")
	}
	for _, e := range s.Entries {
		if _, ok := e.(ToolUIWidget); ok {
			t.Fatalf("idle did not drop widgets")
		}
	}
	if len(s.Entries) != 1 {
		t.Fatalf("idle dropped non-widget entries: %d left", len(s.Entries))
	}
}

func TestProgressIgnoresNonPositiveTotal(t *testing.T) {
	s := NewState("")
	s = applyLive(s, event.Progress{TotalSubtasks: 0, CompletedSubtasks: 2})
	if s.Progress != nil {
		t.Fatalf("zero-total progress applied")
	}
}

func TestScopeFilter(t *testing.T) {
	cases := []struct {
		name    string
		viewed  string
		current string
		mission string
		want    bool
	}{
		{"explicit match viewed", "m1", "m2", "m1", true},
		{"explicit mismatch viewed", "m1", "m2", "m2", false},
		{"explicit match current when nothing viewed", "", "m2", "m2", true},
		{"explicit mismatch current when nothing viewed", "", "m2", "m3", false},
		{"explicit with no context", "", "", "m9", true},
		{"unscoped with no context", "", "", "", true},
		{"unscoped viewing current", "m1", "m1", "", true},
		{"unscoped viewing other mission", "m1", "m2", "", false},
		{"unscoped current unknown", "m1", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState(tc.viewed)
			s.CurrentMissionID = tc.current
			s = applyLive(s, event.UserMessage{ID: "u1", Content: "hi", Mission: tc.mission})
			got := len(s.Entries) == 1
			if got != tc.want {
				t.Fatalf("accepted=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestScopedStatusForOtherMissionIgnored(t *testing.T) {
	s := NewState("m1")
	s.Run = event.RunRunning
	s = applyLive(s, event.Status{State: event.RunIdle, Mission: "m2"})
	if s.Run != event.RunRunning {
		t.Fatalf("status for another mission changed run state")
	}
}

func TestTransportNoiseSuppressed(t *testing.T) {
	s := NewState("")
	s = applyLive(s, event.Error{Message: "stream Connection Failed: EOF"})
	s = applyLive(s, event.Error{Message: "event stream lagged, resubscribing"})
	if len(s.Entries) != 0 {
		t.Fatalf("transport noise surfaced: %d entries", len(s.Entries))
	}

	s = applyLive(s, event.Error{Message: "tool execution failed: permission denied"})
	if len(s.Entries) != 1 {
		t.Fatalf("real error not surfaced")
	}
	en := s.Entries[0].(ErrorNotice)
	if en.ID != "error-1" {
		t.Fatalf("notice id = %q", en.ID)
	}
}

func TestUnparseableWidgetDropped(t *testing.T) {
	s := NewState("")
	s = applyLive(s, event.ToolCall{ToolCallID: "w1", Name: "ui_dataTable", Args: json.RawMessage(`not json`)})
	if len(s.Entries) != 0 {
		t.Fatalf("unparseable widget appended")
	}
}

func TestDesktopToolEffect(t *testing.T) {
	s := NewState("")
	s = Apply(s, event.ToolCall{ToolCallID: "d1", Name: "desktop_launch", Args: json.RawMessage(`{}`)}, ApplyOptions{Now: testNow})

	effects, s := TakeEffects(s)
	if len(effects) != 1 {
		t.Fatalf("got %d effects, want 1", len(effects))
	}
	if eff, ok := effects[0].(OpenDesktopStream); !ok || eff.ToolCallID != "d1" {
		t.Fatalf("unexpected effect: %+v", effects[0])
	}
	if len(s.Effects) != 0 {
		t.Fatalf("effects not drained")
	}

	// The tool call itself still enters the timeline.
	if tc, ok := s.Entries[0].(ToolCall); !ok || tc.State != ToolRunning {
		t.Fatalf("desktop tool call missing from timeline")
	}
}

func TestReplaySuppressesEffects(t *testing.T) {
	s := NewState("")
	s = Apply(s, event.ToolCall{ToolCallID: "d1", Name: "desktop_launch", Args: json.RawMessage(`{}`)}, ApplyOptions{Replay: true, Now: testNow})
	if len(s.Effects) != 0 {
		t.Fatalf("replay produced side effects")
	}
}

func TestMissionStatusChangedCancelsRunningTools(t *testing.T) {
	s := NewState("m1")
	s = applyLive(s, event.ToolCall{ToolCallID: "t1", Name: "bash", Mission: "m1"})

	s = applyLive(s, event.MissionStatusChanged{Mission: "m1", Status: "interrupted"})

	tc := s.Entries[0].(ToolCall)
	if tc.State != ToolCancelled {
		t.Fatalf("tool state = %v, want cancelled", tc.State)
	}

	// Status changes for other missions leave the timeline alone.
	s2 := NewState("m1")
	s2 = applyLive(s2, event.ToolCall{ToolCallID: "t1", Name: "bash", Mission: "m1"})
	s2 = applyLive(s2, event.MissionStatusChanged{Mission: "m2", Status: "failed"})
	if s2.Entries[0].(ToolCall).State != ToolRunning {
		t.Fatalf("foreign mission status touched the timeline")
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := NewState("m1")
	s = applyLive(s, event.ToolCall{ToolCallID: "t1", Name: "bash", Mission: "m1"})
	snapshot := s

	_ = applyLive(s, event.ToolResult{ToolCallID: "t1", Result: json.RawMessage(`"ok"`), Mission: "m1"})

	if snapshot.Entries[0].(ToolCall).State != ToolRunning {
		t.Fatalf("Apply mutated the previous state's entries")
	}
}

func storedHistory() []event.StoredEvent {
	return []event.StoredEvent{
		{ID: 5, MissionID: "m1", Sequence: 3, EventType: event.TypeToolResult, Timestamp: "2026-03-14T09:00:03Z", ToolCallID: "t1", Content: `{"output":"ok"}`},
		{ID: 2, MissionID: "m1", Sequence: 1, EventType: event.TypeUserMessage, Timestamp: "2026-03-14T09:00:01Z", EventID: "u1", Content: "do the thing"},
		{ID: 3, MissionID: "m1", Sequence: 2, EventType: event.TypeToolCall, Timestamp: "2026-03-14T09:00:02Z", ToolCallID: "t1", ToolName: "bash", Content: `{"cmd":"make"}`},
		{ID: 7, MissionID: "m1", Sequence: 4, EventType: event.TypeTextDelta, Timestamp: "2026-03-14T09:00:04Z", Content: "partial"},
		{ID: 9, MissionID: "m1", Sequence: 5, EventType: event.TypeAssistantMessage, Timestamp: "2026-03-14T09:00:05Z", EventID: "a1", Content: "done", Metadata: json.RawMessage(`{"success":true,"cost_cents":12,"model":"sonnet"}`)},
	}
}

func TestRebuildOrdersAndDecodes(t *testing.T) {
	s := Rebuild("m1", storedHistory())

	if len(s.Entries) != 3 {
		t.Fatalf("got %d entries, want 3 (text_delta folded away): %+v", len(s.Entries), s.Entries)
	}
	if um, ok := s.Entries[0].(UserMessage); !ok || um.ID != "u1" {
		t.Fatalf("entry 0 = %+v", s.Entries[0])
	}
	tc, ok := s.Entries[1].(ToolCall)
	if !ok || tc.State != ToolSuccess {
		t.Fatalf("entry 1 = %+v", s.Entries[1])
	}
	am, ok := s.Entries[2].(AssistantMessage)
	if !ok || am.CostCents != 12 || am.Model != "sonnet" || !am.Success {
		t.Fatalf("entry 2 = %+v", s.Entries[2])
	}
	if len(s.Effects) != 0 {
		t.Fatalf("rebuild produced effects")
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	first := Rebuild("m1", storedHistory())
	second := Rebuild("m1", storedHistory())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuilds differ:\n%+v\n%+v", first, second)
	}
}
