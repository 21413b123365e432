package output

import "time"

// MessageDeduplicator interface - Output port
// Remembers message ids for a window so redelivered events are processed once
type MessageDeduplicator interface {
	// Seen records id at now and reports whether it was already recorded
	// inside the window.
	Seen(id string, now time.Time) bool
}
