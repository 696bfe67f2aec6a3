package console

import (
	"encoding/json"

	"github.com/sandboxed-sh/console/internal/actor"
	"github.com/sandboxed-sh/console/internal/event"
	"github.com/sandboxed-sh/console/internal/missioncache"
	"github.com/sandboxed-sh/console/internal/stream"
)

// Console is the public face of the coordinator actor.
type Console struct {
	loop  *actor.Loop[ViewState]
	clock actor.Clock
}

// Options configure a Console.
type Options struct {
	// Clock defaults to the system clock.
	Clock actor.Clock
	// OnChange runs after every state transition (rendering hook). It runs
	// on the actor goroutine and must not block.
	OnChange func(ViewState)
	// OnDesktop handles agent-initiated desktop sessions.
	OnDesktop DesktopHandler
}

// New wires a console around a backend and an optional mission cache.
func New(backend Backend, cache *missioncache.Cache, opts Options) *Console {
	clock := opts.Clock
	if clock == nil {
		clock = actor.RealClock{}
	}

	rt := &runtime{
		backend:   backend,
		cache:     cache,
		clock:     clock,
		onDesktop: opts.OnDesktop,
	}

	hooks := actor.Hooks[ViewState]{}
	if opts.OnChange != nil {
		onChange := opts.OnChange
		hooks.OnTransition = func(_, next ViewState, _ actor.Input) {
			onChange(next)
		}
	}

	return &Console{
		loop:  actor.New(ViewState{}, reduce, rt, hooks),
		clock: clock,
	}
}

// Start launches the actor and requests the initial fetches.
func (c *Console) Start() {
	c.loop.Start()
	c.loop.Enqueue(BootstrapCmd{})
}

// Stop shuts the actor down.
func (c *Console) Stop() {
	c.loop.Stop()
}

// Done closes when the actor loop has exited.
func (c *Console) Done() <-chan struct{} { return c.loop.Done() }

// State snapshots the current view state.
func (c *Console) State() ViewState { return c.loop.State() }

// SwitchTo requests viewing the given mission.
func (c *Console) SwitchTo(missionID string) {
	c.loop.Enqueue(SwitchToCmd{MissionID: missionID})
}

// SendMessage optimistically appends the message and posts it to the
// backend.
func (c *Console) SendMessage(content string) {
	c.loop.Enqueue(SendMessageCmd{Content: content, Now: c.clock.Now()})
}

// SubmitToolResult answers a frontend tool call.
func (c *Console) SubmitToolResult(toolCallID, name string, result json.RawMessage) {
	c.loop.Enqueue(SubmitToolResultCmd{ToolCallID: toolCallID, Name: name, Result: result})
}

// AttachStream subscribes the console to a stream connection. Call before
// the connection's Run loop starts delivering events.
func (c *Console) AttachStream(conn *stream.Conn) {
	conn.Subscribe(func(ev event.Event) {
		c.loop.Enqueue(StreamEvent{Event: ev, Now: c.clock.Now()})
	})
	conn.OnStateChange(func(s stream.State) {
		c.loop.Enqueue(ConnStateChanged{State: s})
	})
	conn.OnReconnected(func() {
		c.loop.Enqueue(StreamReconnected{})
	})
}
