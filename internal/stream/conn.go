// Package stream maintains the live server-push connection, reconnecting
// with bounded exponential backoff and converting named wire events into the
// typed event union at the boundary.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sandboxed-sh/console/internal/event"
	"github.com/sandboxed-sh/console/pkg/logger"
)

// Phase is the connection lifecycle phase.
type Phase string

const (
	Disconnected Phase = "disconnected"
	Connecting   Phase = "connecting"
	Connected    Phase = "connected"
	Reconnecting Phase = "reconnecting"
)

// State is the externally visible connection state. Attempt counts
// consecutive failed dials and is meaningful while Reconnecting.
type State struct {
	Phase   Phase
	Attempt int
}

// maxBackoff caps the reconnect delay.
const maxBackoff = 30 * time.Second

// backoffDelay returns the sleep before reconnect attempt n (0-based):
// 1s, 2s, 4s, ... capped at 30s.
func backoffDelay(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Callbacks are wired into a dialed session. The session must stop invoking
// them after Close returns.
type Callbacks struct {
	// OnEvent delivers one named wire event with its JSON payload.
	OnEvent func(name string, payload []byte)
	// OnDisconnect reports that the session dropped. Invoked at most once.
	OnDisconnect func(reason string)
}

// Session is one live connection produced by a Dialer.
type Session interface {
	Close() error
}

// Dialer establishes sessions. The production implementation wraps the
// socket.io client; tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, cb Callbacks) (Session, error)
}

// Conn owns the reconnect loop around a Dialer.
//
// Register handlers before Run; Run blocks until the context is cancelled or
// Dispose is called.
type Conn struct {
	dialer Dialer

	mu            sync.Mutex
	handler       func(event.Event)
	onState       func(State)
	onReconnected func()
	state         State
	attempt       int

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a connection around the given dialer.
func New(dialer Dialer) *Conn {
	return &Conn{
		dialer: dialer,
		state:  State{Phase: Disconnected},
		done:   make(chan struct{}),
	}
}

// Subscribe registers the typed-event handler. Unknown event names are
// logged and dropped before the handler is reached.
func (c *Conn) Subscribe(handler func(event.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// OnStateChange registers a connection-state observer.
func (c *Conn) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnReconnected registers a hook fired once per transition into Connected
// after the first successful connect.
func (c *Conn) OnReconnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnected = fn
}

// CurrentState returns the last published connection state.
func (c *Conn) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dispose stops the reconnect loop, cancelling any pending backoff sleep.
func (c *Conn) Dispose() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ErrDisposed is returned by Run after Dispose.
var ErrDisposed = errors.New("stream: disposed")

// Run drives the connect/receive/reconnect loop until ctx is cancelled or
// the connection is disposed.
func (c *Conn) Run(ctx context.Context) error {
	connectedBefore := false

	for {
		if connectedBefore {
			c.setState(State{Phase: Reconnecting, Attempt: c.currentAttempt()})
		} else {
			c.setState(State{Phase: Connecting})
		}

		disconnected := make(chan string, 1)
		var once sync.Once
		cb := Callbacks{
			OnEvent: c.dispatch,
			OnDisconnect: func(reason string) {
				once.Do(func() { disconnected <- reason })
			},
		}

		session, err := c.dialer.Dial(ctx, cb)
		if err != nil {
			if stop := c.stopped(ctx); stop != nil {
				c.setState(State{Phase: Disconnected})
				return stop
			}
			attempt := c.bumpAttempt()
			delay := backoffDelay(attempt - 1)
			logger.Debugf("stream: dial failed (attempt %d, retry in %s): %v", attempt, delay, err)
			c.setState(State{Phase: Reconnecting, Attempt: attempt})
			if stop := c.sleep(ctx, delay); stop != nil {
				c.setState(State{Phase: Disconnected})
				return stop
			}
			continue
		}

		c.resetAttempt()
		c.setState(State{Phase: Connected})
		if connectedBefore {
			c.fireReconnected()
		}
		connectedBefore = true

		select {
		case <-ctx.Done():
			_ = session.Close()
			c.setState(State{Phase: Disconnected})
			return ctx.Err()
		case <-c.done:
			_ = session.Close()
			c.setState(State{Phase: Disconnected})
			return ErrDisposed
		case reason := <-disconnected:
			_ = session.Close()
			logger.Infof("stream: disconnected: %s", reason)
		}

		attempt := c.bumpAttempt()
		delay := backoffDelay(attempt - 1)
		c.setState(State{Phase: Reconnecting, Attempt: attempt})
		if stop := c.sleep(ctx, delay); stop != nil {
			c.setState(State{Phase: Disconnected})
			return stop
		}
	}
}

// dispatch parses one wire event and forwards it. Any event other than an
// error resets the backoff floor, since the connection is demonstrably
// healthy.
func (c *Conn) dispatch(name string, payload []byte) {
	if name != string(event.TypeError) {
		c.resetAttempt()
	}

	ev, err := event.Parse(name, payload)
	if err != nil {
		if errors.Is(err, event.ErrUnknownEvent) {
			logger.Debugf("stream: ignoring unknown event %q", name)
		} else {
			logger.Warnf("stream: dropping malformed %q event: %v", name, err)
		}
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

func (c *Conn) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrDisposed
	case <-timer.C:
		return nil
	}
}

func (c *Conn) stopped(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrDisposed
	default:
		return nil
	}
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	onState := c.onState
	c.mu.Unlock()
	if onState != nil {
		onState(s)
	}
}

func (c *Conn) fireReconnected() {
	c.mu.Lock()
	fn := c.onReconnected
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Conn) bumpAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt++
	return c.attempt
}

func (c *Conn) currentAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

func (c *Conn) resetAttempt() {
	c.mu.Lock()
	c.attempt = 0
	c.mu.Unlock()
}
