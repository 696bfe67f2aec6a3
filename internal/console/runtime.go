package console

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sandboxed-sh/console/internal/actor"
	"github.com/sandboxed-sh/console/internal/api"
	"github.com/sandboxed-sh/console/internal/event"
	"github.com/sandboxed-sh/console/internal/missioncache"
	"github.com/sandboxed-sh/console/pkg/logger"
)

// Backend is the slice of the REST client the console needs. *api.Client
// satisfies it; tests use a fake.
type Backend interface {
	GetMission(ctx context.Context, missionID string) (api.Mission, error)
	CurrentMission(ctx context.Context) (*api.Mission, error)
	MissionEvents(ctx context.Context, missionID string, types []event.Type) ([]event.StoredEvent, error)
	ListRunning(ctx context.Context) ([]api.RunningMission, error)
	SendMessage(ctx context.Context, content, model string) (api.MessageReceipt, error)
	PostToolResult(ctx context.Context, toolCallID, name string, result json.RawMessage) error
}

// DesktopHandler is invoked when the agent starts a desktop session the
// client should attach to.
type DesktopHandler func(toolCallID, name string, args []byte)

// runtime executes console effects. Cache operations run inline (the loop
// goroutine is the cache's only user); network calls run in goroutines and
// report back through emit.
type runtime struct {
	backend   Backend
	cache     *missioncache.Cache
	clock     actor.Clock
	onDesktop DesktopHandler
}

func (r *runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case lookupCacheEffect:
			var entry *missioncache.Entry
			if r.cache != nil {
				if hit, ok := r.cache.Get(e.MissionID); ok {
					entry = hit
				}
			}
			emit(CacheLookedUp{Gen: e.Gen, MissionID: e.MissionID, Entry: entry})

		case fetchMissionEffect:
			go func() {
				mission, err := r.backend.GetMission(ctx, e.MissionID)
				emit(MissionFetched{Gen: e.Gen, Mission: mission, Err: err})
			}()

		case fetchEventsEffect:
			go func() {
				events, err := r.backend.MissionEvents(ctx, e.MissionID, event.ReplayTypes)
				emit(EventsFetched{
					Gen:       e.Gen,
					MissionID: e.MissionID,
					Events:    events,
					Refresh:   e.Refresh,
					Err:       err,
				})
			}()

		case fetchCurrentEffect:
			go func() {
				mission, err := r.backend.CurrentMission(ctx)
				emit(CurrentMissionFetched{Mission: mission, Err: err})
			}()

		case fetchRunningEffect:
			go func() {
				running, err := r.backend.ListRunning(ctx)
				if err != nil {
					logger.Debugf("console: running poll failed: %v", err)
					return
				}
				emit(RunningListFetched{Running: running})
			}()

		case sendMessageEffect:
			go func() {
				if _, err := r.backend.SendMessage(ctx, e.Content, ""); err != nil {
					emit(RequestFailed{
						Reason: "failed to send message: " + err.Error(),
						Now:    r.now(),
					})
				}
			}()

		case postToolResultEffect:
			go func() {
				if err := r.backend.PostToolResult(ctx, e.ToolCallID, e.Name, e.Result); err != nil {
					emit(RequestFailed{
						Reason: "failed to submit tool result: " + err.Error(),
						Now:    r.now(),
					})
				}
			}()

		case cachePutEffect:
			if r.cache == nil {
				continue
			}
			if err := r.cache.Put(e.MissionID, e.Entry); err != nil {
				logger.Warnf("console: failed to cache mission %s: %v", e.MissionID, err)
			}

		case cacheInvalidateEffect:
			if r.cache != nil {
				r.cache.Invalidate(e.MissionID)
			}

		case openDesktopEffect:
			logger.Infof("console: agent opened desktop session via %s (%s)", e.Name, e.ToolCallID)
			if r.onDesktop != nil {
				r.onDesktop(e.ToolCallID, e.Name, e.Args)
			}
		}
	}
}

func (r *runtime) Stop() {}

func (r *runtime) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now()
}
