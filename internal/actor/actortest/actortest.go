// Package actortest holds test doubles for the actor loop.
package actortest

import (
	"context"
	"sync"
	"time"

	"github.com/sandboxed-sh/console/internal/actor"
)

// FakeRuntime records effects instead of executing them. Tests can set
// EmitFn to synthesize the inputs an effect would have produced.
type FakeRuntime struct {
	mu      sync.Mutex
	effects []actor.Effect

	EmitFn func(ctx context.Context, eff actor.Effect, emit func(actor.Input))
}

func (r *FakeRuntime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	r.mu.Lock()
	r.effects = append(r.effects, effects...)
	emitFn := r.EmitFn
	r.mu.Unlock()

	if emitFn != nil {
		for _, eff := range effects {
			emitFn(ctx, eff, emit)
		}
	}
}

func (r *FakeRuntime) Stop() {}

// Effects snapshots the recorded effects.
func (r *FakeRuntime) Effects() []actor.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]actor.Effect, len(r.effects))
	copy(out, r.effects)
	return out
}

// FakeClock is a settable Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ actor.Clock = (*FakeClock)(nil)

// NewFakeClock starts the clock at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
