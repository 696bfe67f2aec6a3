package console

import (
	"context"
	"time"

	"github.com/sandboxed-sh/console/pkg/logger"
)

// DefaultPollInterval is how often the running-missions list is refreshed.
const DefaultPollInterval = 3 * time.Second

// Tracker polls the running-missions endpoint and pushes each snapshot into
// the console wholesale. A failed poll keeps the previous list.
type Tracker struct {
	backend  Backend
	console  *Console
	interval time.Duration
}

// NewTracker creates a tracker; interval <= 0 selects the default.
func NewTracker(backend Backend, console *Console, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tracker{backend: backend, console: console, interval: interval}
}

// Run polls until ctx is cancelled. It performs one immediate poll so the
// first render does not wait a full interval.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

func (t *Tracker) poll(ctx context.Context) {
	running, err := t.backend.ListRunning(ctx)
	if err != nil {
		logger.Debugf("tracker: poll failed, keeping previous list: %v", err)
		return
	}
	t.console.loop.Enqueue(RunningListFetched{Running: running})
}
