package checkin

import "sync"

// DefaultActivityCapacity is the number of outcomes kept per event.
const DefaultActivityCapacity = 10

// ActivityLog keeps the most recent outcomes, newest first. Invalid outcomes
// are not recorded. It is safe for concurrent use.
type ActivityLog struct {
	mu       sync.Mutex
	capacity int
	entries  []Outcome
}

// NewActivityLog returns a log bounded to capacity entries. Non-positive
// values select DefaultActivityCapacity.
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivityCapacity
	}
	return &ActivityLog{capacity: capacity, entries: make([]Outcome, 0, capacity)}
}

// Record prepends o, dropping the oldest entry when full. It reports whether
// the outcome was kept.
func (l *ActivityLog) Record(o Outcome) bool {
	if l == nil || o.Kind == KindInvalid {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Outcome{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = o
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
	return true
}

// Entries returns a copy of the log, newest first.
func (l *ActivityLog) Entries() []Outcome {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Outcome, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the number of retained entries.
func (l *ActivityLog) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
