// Package console coordinates the live view: it owns the reconciled
// timeline, mission switching, the running-missions list, and the connection
// state, all behind a single actor loop.
//
// The reducer in this file is pure. Network and cache work is described as
// effects and executed by the runtime, which reports outcomes back as
// inputs. Every asynchronous outcome carries the switch generation it was
// started under; outcomes from a superseded switch are discarded on arrival.
package console

import (
	"encoding/json"
	"time"

	"github.com/sandboxed-sh/console/internal/actor"
	"github.com/sandboxed-sh/console/internal/api"
	"github.com/sandboxed-sh/console/internal/event"
	"github.com/sandboxed-sh/console/internal/missioncache"
	"github.com/sandboxed-sh/console/internal/stream"
	"github.com/sandboxed-sh/console/internal/timeline"
)

// ViewState is everything a renderer needs to draw the console.
type ViewState struct {
	Timeline timeline.State
	// Viewed is the mission being looked at; nil means the main session
	// (whatever mission the backend currently runs).
	Viewed *api.Mission
	// Current is the backend's current mission, nil when none.
	Current *api.Mission
	// Running is the latest running-missions snapshot, replaced wholesale
	// on every poll.
	Running []api.RunningMission
	// Conn is the stream connection state.
	Conn stream.State

	// switchGen is the mission-switch generation token. switchTarget is the
	// in-flight switch destination ("" when settled).
	switchGen    int
	switchTarget string
	// switchHadCache records whether the in-flight switch already rendered
	// from cache; it decides the failure fallback.
	switchHadCache bool
	// prevViewed/prevTimeline snapshot the view to revert to when a switch
	// fails before anything was rendered.
	prevViewed   *api.Mission
	prevTimeline timeline.State
}

// Switching reports whether a mission switch is still in flight.
func (s ViewState) Switching() bool { return s.switchTarget != "" }

// viewedID is the mission whose history the view tracks: the in-flight
// switch target, the viewed mission, or the backend's current mission.
func viewedID(s ViewState) string {
	if s.switchTarget != "" {
		return s.switchTarget
	}
	if s.Viewed != nil {
		return s.Viewed.ID
	}
	if s.Current != nil {
		return s.Current.ID
	}
	return ""
}

// --- inputs ---

// BootstrapCmd kicks off the initial current-mission and running fetches.
type BootstrapCmd struct{ actor.InputBase }

// SwitchToCmd requests viewing another mission.
type SwitchToCmd struct {
	actor.InputBase
	MissionID string
}

// SendMessageCmd appends an optimistic user message and posts it.
type SendMessageCmd struct {
	actor.InputBase
	Content string
	Now     time.Time
}

// SubmitToolResultCmd answers a frontend tool call (UI widgets).
type SubmitToolResultCmd struct {
	actor.InputBase
	ToolCallID string
	Name       string
	Result     json.RawMessage
}

// StreamEvent is one live event off the stream.
type StreamEvent struct {
	actor.InputBase
	Event event.Event
	Now   time.Time
}

// ConnStateChanged mirrors the stream connection state.
type ConnStateChanged struct {
	actor.InputBase
	State stream.State
}

// StreamReconnected fires once per re-established connection.
type StreamReconnected struct{ actor.InputBase }

// RunningListFetched replaces the running-missions list.
type RunningListFetched struct {
	actor.InputBase
	Running []api.RunningMission
}

// CacheLookedUp reports the cache-first lookup of a switch. Entry is nil on
// a miss.
type CacheLookedUp struct {
	actor.InputBase
	Gen       int
	MissionID string
	Entry     *missioncache.Entry
}

// MissionFetched reports the metadata fetch of a switch.
type MissionFetched struct {
	actor.InputBase
	Gen     int
	Mission api.Mission
	Err     error
}

// EventsFetched reports a history fetch; Refresh marks a reconnect refresh
// rather than a switch.
type EventsFetched struct {
	actor.InputBase
	Gen       int
	MissionID string
	Events    []event.StoredEvent
	Refresh   bool
	Err       error
}

// CurrentMissionFetched reports the backend's current mission (nil when
// none).
type CurrentMissionFetched struct {
	actor.InputBase
	Mission *api.Mission
	Err     error
}

// RequestFailed surfaces a failed fire-and-forget request as a timeline
// notice.
type RequestFailed struct {
	actor.InputBase
	Reason string
	Now    time.Time
}

// --- effects ---

type lookupCacheEffect struct {
	actor.EffectBase
	Gen       int
	MissionID string
}

type fetchMissionEffect struct {
	actor.EffectBase
	Gen       int
	MissionID string
}

type fetchEventsEffect struct {
	actor.EffectBase
	Gen       int
	MissionID string
	Refresh   bool
}

type fetchCurrentEffect struct{ actor.EffectBase }

type fetchRunningEffect struct{ actor.EffectBase }

type sendMessageEffect struct {
	actor.EffectBase
	Content string
}

type postToolResultEffect struct {
	actor.EffectBase
	ToolCallID string
	Name       string
	Result     json.RawMessage
}

type cachePutEffect struct {
	actor.EffectBase
	MissionID string
	Entry     *missioncache.Entry
}

type cacheInvalidateEffect struct {
	actor.EffectBase
	MissionID string
}

type openDesktopEffect struct {
	actor.EffectBase
	ToolCallID string
	Name       string
	Args       []byte
}

// --- reducer ---

func reduce(s ViewState, input actor.Input) (ViewState, []actor.Effect) {
	switch in := input.(type) {
	case BootstrapCmd:
		return s, []actor.Effect{fetchCurrentEffect{}, fetchRunningEffect{}}

	case SwitchToCmd:
		return reduceSwitchTo(s, in)

	case SendMessageCmd:
		s.Timeline = timeline.AddOptimisticUserMessage(s.Timeline, in.Content, in.Now)
		return s, []actor.Effect{sendMessageEffect{Content: in.Content}}

	case SubmitToolResultCmd:
		return s, []actor.Effect{postToolResultEffect{
			ToolCallID: in.ToolCallID,
			Name:       in.Name,
			Result:     in.Result,
		}}

	case StreamEvent:
		return reduceStreamEvent(s, in)

	case ConnStateChanged:
		s.Conn = in.State
		return s, nil

	case StreamReconnected:
		effects := []actor.Effect{fetchCurrentEffect{}}
		if id := viewedID(s); id != "" {
			effects = append(effects, fetchEventsEffect{Gen: s.switchGen, MissionID: id, Refresh: true})
		}
		return s, effects

	case RunningListFetched:
		s.Running = in.Running
		return s, nil

	case CacheLookedUp:
		return reduceCacheLookedUp(s, in)

	case MissionFetched:
		return reduceMissionFetched(s, in)

	case EventsFetched:
		return reduceEventsFetched(s, in)

	case CurrentMissionFetched:
		if in.Err != nil {
			return s, nil
		}
		s.Current = in.Mission
		if in.Mission != nil {
			s.Timeline.CurrentMissionID = in.Mission.ID
		} else {
			s.Timeline.CurrentMissionID = ""
		}
		return s, nil

	case RequestFailed:
		s.Timeline = timeline.Apply(s.Timeline, event.Error{Message: in.Reason},
			timeline.ApplyOptions{Now: in.Now})
		return s, nil

	default:
		return s, nil
	}
}

func reduceSwitchTo(s ViewState, in SwitchToCmd) (ViewState, []actor.Effect) {
	if in.MissionID == "" || (s.Viewed != nil && s.Viewed.ID == in.MissionID && s.switchTarget == "") {
		return s, nil
	}

	// Starting a new switch supersedes any in-flight one; its completions
	// arrive carrying the old generation and are dropped.
	s.switchGen++
	s.switchTarget = in.MissionID
	s.switchHadCache = false
	s.prevViewed = s.Viewed
	s.prevTimeline = s.Timeline

	fresh := timeline.NewState(in.MissionID)
	fresh.CurrentMissionID = s.Timeline.CurrentMissionID
	s.Timeline = fresh
	s.Viewed = nil

	return s, []actor.Effect{
		lookupCacheEffect{Gen: s.switchGen, MissionID: in.MissionID},
		fetchMissionEffect{Gen: s.switchGen, MissionID: in.MissionID},
		fetchEventsEffect{Gen: s.switchGen, MissionID: in.MissionID},
	}
}

func reduceCacheLookedUp(s ViewState, in CacheLookedUp) (ViewState, []actor.Effect) {
	if in.Gen != s.switchGen || in.MissionID != s.switchTarget || in.Entry == nil {
		return s, nil
	}

	s.switchHadCache = true
	rebuilt := timeline.Rebuild(in.MissionID, in.Entry.Events)
	rebuilt.CurrentMissionID = s.Timeline.CurrentMissionID
	s.Timeline = rebuilt
	mission := in.Entry.Mission
	s.Viewed = &mission
	return s, nil
}

func reduceMissionFetched(s ViewState, in MissionFetched) (ViewState, []actor.Effect) {
	if in.Gen != s.switchGen {
		return s, nil
	}
	if in.Err != nil {
		// Metadata is secondary; the events fetch decides the fallback.
		return s, nil
	}
	mission := in.Mission
	s.Viewed = &mission
	return s, nil
}

func reduceEventsFetched(s ViewState, in EventsFetched) (ViewState, []actor.Effect) {
	if in.Gen != s.switchGen {
		return s, nil
	}
	if in.Refresh {
		return reduceHistoryRefreshed(s, in)
	}
	if in.MissionID != s.switchTarget {
		return s, nil
	}

	if in.Err != nil {
		reason := "failed to load mission history: " + in.Err.Error()
		if s.switchHadCache {
			// Keep the cache-rendered view.
			s.switchTarget = ""
			s.Timeline = timeline.Apply(s.Timeline, event.Error{Message: reason},
				timeline.ApplyOptions{})
			return s, nil
		}
		// Nothing rendered yet; fall back to where the user was.
		s.Viewed = s.prevViewed
		s.Timeline = timeline.Apply(s.prevTimeline, event.Error{Message: reason},
			timeline.ApplyOptions{})
		s.switchTarget = ""
		return s, nil
	}

	var effects []actor.Effect
	if len(in.Events) == 0 && s.switchHadCache {
		// The server is authoritative: a cached mission with no server-side
		// history was stale, so drop the cached copy.
		effects = append(effects, cacheInvalidateEffect{MissionID: in.MissionID})
	}

	rebuilt := timeline.Rebuild(in.MissionID, in.Events)
	rebuilt.CurrentMissionID = s.Timeline.CurrentMissionID
	s.Timeline = rebuilt
	s.switchTarget = ""

	if len(in.Events) > 0 {
		effects = append(effects, cachePutEffect{
			MissionID: in.MissionID,
			Entry:     &missioncache.Entry{Mission: viewedOrStub(s, in.MissionID), Events: in.Events},
		})
	}
	return s, effects
}

func reduceHistoryRefreshed(s ViewState, in EventsFetched) (ViewState, []actor.Effect) {
	if in.Err != nil || in.MissionID != viewedID(s) {
		// The stream is live again; a failed refresh just keeps the
		// pre-disconnect view.
		return s, nil
	}
	if len(in.Events) == 0 {
		return s, nil
	}

	rebuilt := timeline.Rebuild(s.Timeline.ViewedMissionID, in.Events)
	rebuilt.CurrentMissionID = s.Timeline.CurrentMissionID
	s.Timeline = rebuilt

	var effects []actor.Effect
	if s.Viewed != nil && s.Viewed.ID == in.MissionID {
		effects = append(effects, cachePutEffect{
			MissionID: in.MissionID,
			Entry:     &missioncache.Entry{Mission: *s.Viewed, Events: in.Events},
		})
	}
	return s, effects
}

func reduceStreamEvent(s ViewState, in StreamEvent) (ViewState, []actor.Effect) {
	s = applyMissionMetadata(s, in.Event)

	tl := timeline.Apply(s.Timeline, in.Event, timeline.ApplyOptions{Now: in.Now})
	sideEffects, tl := timeline.TakeEffects(tl)
	s.Timeline = tl

	var effects []actor.Effect
	for _, eff := range sideEffects {
		if open, ok := eff.(timeline.OpenDesktopStream); ok {
			effects = append(effects, openDesktopEffect{
				ToolCallID: open.ToolCallID,
				Name:       open.Name,
				Args:       open.Args,
			})
		}
	}
	return s, effects
}

// applyMissionMetadata keeps the mission metadata the console owns in sync
// with mission_status_changed / mission_title_changed events.
func applyMissionMetadata(s ViewState, ev event.Event) ViewState {
	switch e := ev.(type) {
	case event.MissionStatusChanged:
		if s.Viewed != nil && s.Viewed.ID == e.Mission {
			viewed := *s.Viewed
			viewed.Status = e.Status
			s.Viewed = &viewed
		}
		if s.Current != nil && s.Current.ID == e.Mission {
			current := *s.Current
			current.Status = e.Status
			s.Current = &current
		}
	case event.MissionTitleChanged:
		if s.Viewed != nil && s.Viewed.ID == e.Mission {
			viewed := *s.Viewed
			viewed.Title = e.Title
			s.Viewed = &viewed
		}
		if s.Current != nil && s.Current.ID == e.Mission {
			current := *s.Current
			current.Title = e.Title
			s.Current = &current
		}
	}
	return s
}

// viewedOrStub returns the freshest metadata known for a mission, falling
// back to an id-only stub so a cache entry can still be written.
func viewedOrStub(s ViewState, missionID string) api.Mission {
	if s.Viewed != nil && s.Viewed.ID == missionID {
		return *s.Viewed
	}
	return api.Mission{ID: missionID}
}
