// Package actor runs a single-goroutine event loop around a pure reducer.
//
// All mutable state lives on the loop goroutine. Callers communicate through
// the mailbox only; the reducer turns (state, input) into the next state plus
// declarative effects, and a Runtime executes those effects asynchronously,
// feeding any results back in as new inputs. Reducers stay deterministic and
// unit-testable; the loop serializes everything else.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is one mailbox item: either an external command or an observation
// reported back by the runtime.
type Input interface {
	isInput()
}

// Effect is a side effect described as data. Reducers return effects; only
// the Runtime executes them.
type Effect interface {
	isEffect()
}

// InputBase is embedded by input structs to satisfy Input.
type InputBase struct{}

func (InputBase) isInput() {}

// EffectBase is embedded by effect structs to satisfy Effect.
type EffectBase struct{}

func (EffectBase) isEffect() {}

// Reducer is the pure transition function. It must not perform I/O, read the
// clock, or spawn goroutines; timestamps and identifiers arrive via inputs.
type Reducer[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime executes effects on behalf of the loop. HandleEffects must return
// quickly, running blocking work in the background, and must stop emitting
// once the context is cancelled.
type Runtime interface {
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))
	Stop()
}

// Hooks expose loop transitions for rendering and tests.
type Hooks[S any] struct {
	// OnTransition runs on the loop goroutine after each state change.
	OnTransition func(prev, next S, input Input)
}

// ErrStopped is returned by helpers once the loop has shut down.
var ErrStopped = errors.New("actor stopped")

const defaultMailbox = 256

// Loop owns state S and processes its mailbox sequentially.
type Loop[S any] struct {
	reduce  Reducer[S]
	runtime Runtime
	hooks   Hooks[S]

	mu     sync.Mutex
	state  S
	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates a loop with the given initial state.
func New[S any](initial S, reduce Reducer[S], runtime Runtime, hooks Hooks[S]) *Loop[S] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop[S]{
		reduce:  reduce,
		runtime: runtime,
		hooks:   hooks,
		state:   initial,
		inbox:   make(chan Input, defaultMailbox),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start launches the loop goroutine. Idempotent.
func (l *Loop[S]) Start() {
	l.once.Do(func() { go l.run() })
}

// Stop cancels the loop and the runtime. Safe to call repeatedly.
func (l *Loop[S]) Stop() {
	l.cancel()
	if l.runtime != nil {
		l.runtime.Stop()
	}
}

// Done closes when the loop goroutine has exited.
func (l *Loop[S]) Done() <-chan struct{} { return l.done }

// Enqueue posts an input to the mailbox. It reports false when the loop is
// stopped or the mailbox is full; delivery is best effort, and callers that
// need backpressure must provide their own flow control.
func (l *Loop[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.inbox <- input:
		return true
	default:
		return false
	}
}

// State snapshots the current state. Meant for rendering and tests; logic
// belongs in the reducer.
func (l *Loop[S]) State() S {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop[S]) run() {
	defer close(l.done)

	emit := func(in Input) { _ = l.Enqueue(in) }

	for {
		select {
		case <-l.ctx.Done():
			return
		case in := <-l.inbox:
			if in == nil {
				continue
			}

			l.mu.Lock()
			prev := l.state
			l.mu.Unlock()

			next, effects := l.reduce(prev, in)

			l.mu.Lock()
			l.state = next
			l.mu.Unlock()

			if l.hooks.OnTransition != nil {
				l.hooks.OnTransition(prev, next, in)
			}
			if l.runtime != nil && len(effects) > 0 {
				l.runtime.HandleEffects(l.ctx, effects, emit)
			}
		}
	}
}

// Step runs one reducer transition without a loop. Testing utility; effects
// are returned, not executed.
func Step[S any](state S, input Input, reduce Reducer[S]) (S, []Effect) {
	return reduce(state, input)
}
