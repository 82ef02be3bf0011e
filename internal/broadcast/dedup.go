package broadcast

import (
	"sync"
	"time"
)

const defaultDedupWindow = 5 * time.Second

type dedupEntry struct {
	lastSeen time.Time
	count    int
}

type dedupKey struct {
	message string
	agent   string
}

// Deduplicator detects repeated (message, agent) pairs inside a sliding
// time window.
type Deduplicator struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[dedupKey]*dedupEntry
	now     func() time.Time
}

// NewDeduplicator creates a deduplicator. A window of zero uses the default
// of five seconds.
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &Deduplicator{
		window:  window,
		entries: make(map[dedupKey]*dedupEntry),
		now:     time.Now,
	}
}

// Observe records a sighting of (message, agent) and reports whether it is a
// duplicate of a recent line, along with how many times it has been seen in
// the current window.
func (d *Deduplicator) Observe(message, agent string) (bool, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := dedupKey{message: message, agent: agent}
	entry, ok := d.entries[key]
	if ok && now.Sub(entry.lastSeen) < d.window {
		entry.lastSeen = now
		entry.count++
		return true, entry.count
	}
	d.entries[key] = &dedupEntry{lastSeen: now, count: 1}
	return false, 1
}

// Cleanup drops entries whose last sighting is strictly older than the
// window.
func (d *Deduplicator) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, entry := range d.entries {
		if now.Sub(entry.lastSeen) > d.window {
			delete(d.entries, key)
		}
	}
}
