package vision

import "sync"

// LatestFrame is a single-slot handoff between the capture worker and the
// control loop. The producer overwrites the slot with each processed frame;
// the consumer always reads the most recent set and never blocks waiting for
// a new one. No history is retained, which bounds memory and prevents the
// consumer from working through a stale backlog.
type LatestFrame struct {
	mu  sync.Mutex
	set *ObservationSet
}

// Publish replaces the slot contents with a newer observation set.
func (l *LatestFrame) Publish(set *ObservationSet) {
	l.mu.Lock()
	l.set = set
	l.mu.Unlock()
}

// Latest returns the most recently published set, or nil if none has
// arrived yet. The caller must treat the set as read-only.
func (l *LatestFrame) Latest() *ObservationSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}
