package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sandboxed-sh/console/internal/console"
	"github.com/sandboxed-sh/console/internal/event"
	"github.com/sandboxed-sh/console/internal/stream"
	"github.com/sandboxed-sh/console/internal/timeline"
)

// printer renders view-state snapshots as a line-oriented transcript.
//
// Observe only stores the latest snapshot (it runs on the actor goroutine);
// Run drains it on a short ticker and prints what changed since the last
// tick, keyed by entry identity so in-place updates (thinking, tool results)
// are printed once, when they settle.
type printer struct {
	out io.Writer

	mu     sync.Mutex
	latest console.ViewState
	dirty  bool

	printed  map[string]string
	lastConn stream.Phase
	lastRun  event.RunState
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, printed: make(map[string]string)}
}

// Observe stores the newest snapshot. Non-blocking.
func (p *printer) Observe(s console.ViewState) {
	p.mu.Lock()
	p.latest = s
	p.dirty = true
	p.mu.Unlock()
}

// Run renders until ctx is cancelled.
func (p *printer) Run(ctx context.Context) error {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			if !p.dirty {
				p.mu.Unlock()
				continue
			}
			s := p.latest
			p.dirty = false
			p.mu.Unlock()

			p.render(s)
		}
	}
}

func (p *printer) render(s console.ViewState) {
	if s.Conn.Phase != p.lastConn {
		p.lastConn = s.Conn.Phase
		switch s.Conn.Phase {
		case stream.Connected:
			fmt.Fprintln(p.out, "-- connected --")
		case stream.Reconnecting:
			fmt.Fprintf(p.out, "-- reconnecting (attempt %d) --\n", s.Conn.Attempt)
		}
	}
	if s.Timeline.Run != p.lastRun && s.Timeline.Run != "" {
		p.lastRun = s.Timeline.Run
		fmt.Fprintf(p.out, "-- agent %s (queue %d) --\n", s.Timeline.Run, s.Timeline.QueueLen)
	}

	for i, entry := range s.Timeline.Entries {
		key, line, ready := renderEntry(entry)
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		if !ready || p.printed[key] == line {
			continue
		}
		p.printed[key] = line
		fmt.Fprintln(p.out, line)
	}
}

// renderEntry returns the entry's identity, its rendered line, and whether
// it is settled enough to print.
func renderEntry(entry timeline.Entry) (key, line string, ready bool) {
	switch e := entry.(type) {
	case timeline.UserMessage:
		return "u:" + e.ID, "> " + e.Content, true
	case timeline.AssistantMessage:
		line := e.Content
		if e.CostCents > 0 {
			line = fmt.Sprintf("%s  [%d.%02d USD]", line, e.CostCents/100, e.CostCents%100)
		}
		return "a:" + e.ID, line, true
	case timeline.ThinkingBlock:
		// Streamed reasoning is printed once complete.
		return "t:" + e.ID, "(thinking) " + e.Content, e.Done
	case timeline.ToolCall:
		if e.State == timeline.ToolRunning {
			return "c:" + e.ToolCallID, fmt.Sprintf("[tool %s ...]", e.Name), true
		}
		return "c:" + e.ToolCallID, fmt.Sprintf("[tool %s: %s]", e.Name, e.State), true
	case timeline.ToolUIWidget:
		return "w:" + e.ToolCallID, fmt.Sprintf("[ui %s]", e.Name), true
	case timeline.ErrorNotice:
		return "e:" + e.ID, "error: " + e.Message, true
	case timeline.PhaseMarker:
		// Ephemeral; not part of the transcript.
		return "", "", false
	default:
		return "", "", false
	}
}
