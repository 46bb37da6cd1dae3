// Package speech is the text-to-speech capability: fire-and-forget playback
// with completion observable through a Speaking poll.
package speech

import (
	"context"
	"time"
)

// Mode selects the announcement style.
type Mode string

const (
	// ModeLocation announces a task at geofence entry.
	ModeLocation Mode = "location"
	// ModeSnooze announces that a task was queued for later.
	ModeSnooze Mode = "snooze"
)

// Engine is the speech collaborator. Speak returns once playback has started;
// callers observe completion by polling Speaking.
type Engine interface {
	Available(ctx context.Context) bool
	Speak(ctx context.Context, text string, mode Mode) error
	Speaking(ctx context.Context) bool
}

// WaitUntilIdle polls the engine until it stops speaking, the timeout
// elapses, or the context is cancelled. Returns true when the engine went
// idle inside the window. The bound exists to keep the single-threaded
// background handler from stalling behind a wedged audio stack.
func WaitUntilIdle(ctx context.Context, engine Engine, timeout, poll time.Duration) bool {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if !engine.Speaking(ctx) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
