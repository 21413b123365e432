package memory

import (
	"sync"
	"time"

	"wps-bot-bridge/internal/ports/output"
)

// Compile-time check to ensure MessageDeduplicator implements the output port
var _ output.MessageDeduplicator = (*MessageDeduplicator)(nil)

// DefaultDedupeWindow is how long a message id is remembered
const DefaultDedupeWindow = 5 * time.Minute

// MessageDeduplicator remembers processed message ids for a window.
// Expired ids are purged at most once per window.
type MessageDeduplicator struct {
	mu        sync.Mutex
	window    time.Duration
	seen      map[string]time.Time
	lastPurge time.Time
}

// NewMessageDeduplicator func
func NewMessageDeduplicator(window time.Duration) *MessageDeduplicator {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	return &MessageDeduplicator{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// Seen records id at now and reports whether it was already recorded
// inside the window. Empty ids are never duplicates.
func (d *MessageDeduplicator) Seen(id string, now time.Time) bool {
	if id == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.lastPurge) > d.window {
		for k, at := range d.seen {
			if now.Sub(at) > d.window {
				delete(d.seen, k)
			}
		}
		d.lastPurge = now
	}

	if at, ok := d.seen[id]; ok && now.Sub(at) <= d.window {
		return true
	}
	d.seen[id] = now
	return false
}

// Len returns the number of remembered ids.
func (d *MessageDeduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
