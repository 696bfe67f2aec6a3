// Package timeline implements the event reconciler: a pure state-transition
// function that folds live or replayed mission events into an ordered
// conversation/tool-call timeline.
//
// Apply never performs I/O. Side effects requested by specific events (such
// as opening a desktop stream view) are surfaced as values on the returned
// state and drained by the caller; replay suppresses them entirely.
package timeline

import (
	"fmt"
	"time"

	"github.com/sandboxed-sh/console/internal/event"
)

// tempIDPrefix marks optimistic entries created locally before server
// confirmation. Server user_message events collapse onto them by content.
const tempIDPrefix = "temp-"

// State is the reconciled view of one mission's live session.
//
// State is a value: Apply copies it, mutates the copy, and returns it. The
// Entries slice is copy-on-write — Apply clones it before any structural
// change, so previous states remain valid snapshots.
type State struct {
	// Entries is the ordered timeline.
	Entries []Entry

	// Run is the globally tracked run state, with its queue depth.
	Run      event.RunState
	QueueLen int

	// Progress is the current progress indicator, nil when idle/absent.
	Progress *ProgressInfo

	// ViewedMissionID is the mission the user is looking at ("" = main
	// session / not yet known). CurrentMissionID is the backend's current
	// mission. Both feed the mission-scope filter.
	ViewedMissionID  string
	CurrentMissionID string

	// OptimisticSeq numbers locally created temp entries. ThinkingSeq and
	// NoticeSeq number generated entry ids; counters live in state so the
	// reducer stays free of global mutation.
	OptimisticSeq int
	ThinkingSeq   int
	NoticeSeq     int

	// Effects accumulates side effects requested by applied events.
	// Callers drain it with TakeEffects after each Apply.
	Effects []SideEffect
}

// SideEffect is a non-timeline action requested by an applied event.
// Effects are data; the console layer interprets them. Replay never
// produces effects.
type SideEffect interface {
	isSideEffect()
}

// OpenDesktopStream asks the UI layer to attach to a desktop session started
// by the agent (desktop_* tool calls).
type OpenDesktopStream struct {
	ToolCallID string
	Name       string
	Args       []byte
}

func (OpenDesktopStream) isSideEffect() {}

// TakeEffects returns pending side effects and the state with them cleared.
func TakeEffects(s State) ([]SideEffect, State) {
	effects := s.Effects
	s.Effects = nil
	return effects, s
}

// NewState returns an empty timeline scoped to the given viewed mission.
func NewState(viewedMissionID string) State {
	return State{ViewedMissionID: viewedMissionID}
}

// AddOptimisticUserMessage appends a locally authored message before server
// confirmation. The entry carries a temp- id; the confirming user_message
// event replaces the id while preserving the original timestamp.
func AddOptimisticUserMessage(s State, content string, now time.Time) State {
	s.OptimisticSeq++
	s.Entries = append(cloneEntries(s.Entries), UserMessage{
		ID:        fmt.Sprintf("%s%d", tempIDPrefix, s.OptimisticSeq),
		Content:   content,
		Timestamp: now,
	})
	return s
}

// cloneEntries copies the entry slice so earlier State values stay intact.
func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// entryID returns the identity of entries that have one ("" otherwise).
func entryID(e Entry) string {
	switch v := e.(type) {
	case UserMessage:
		return v.ID
	case AssistantMessage:
		return v.ID
	case ThinkingBlock:
		return v.ID
	case ToolCall:
		return v.ToolCallID
	case ToolUIWidget:
		return v.ToolCallID
	case ErrorNotice:
		return v.ID
	default:
		return ""
	}
}
