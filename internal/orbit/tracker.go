package orbit

import (
	"strings"
	"sync"
	"time"
)

// Tracker remembers when each path was first observed. Entries follow their
// document across moves; nothing is persisted.
type Tracker struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]time.Time)}
}

// Observe records now as the first observation of p unless p is already
// tracked, and returns the recorded time.
func (t *Tracker) Observe(p string, now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if first, ok := t.seen[p]; ok {
		return first
	}
	t.seen[p] = now
	return now
}

// Age returns how long ago p was first observed, or zero if it never was.
func (t *Tracker) Age(p string, now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	first, ok := t.seen[p]
	if !ok {
		return 0
	}
	return now.Sub(first)
}

// Rekey moves the entry for oldPath, and every entry below it when it is a
// folder, to newPath.
func (t *Tracker) Rekey(oldPath, newPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if first, ok := t.seen[oldPath]; ok {
		delete(t.seen, oldPath)
		t.seen[newPath] = first
	}
	prefix := oldPath + "/"
	moved := make(map[string]time.Time)
	for p, first := range t.seen {
		if strings.HasPrefix(p, prefix) {
			delete(t.seen, p)
			moved[newPath+"/"+strings.TrimPrefix(p, prefix)] = first
		}
	}
	for p, first := range moved {
		t.seen[p] = first
	}
}

// Forget drops p.
func (t *Tracker) Forget(p string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, p)
}

// Len returns the number of tracked paths.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
