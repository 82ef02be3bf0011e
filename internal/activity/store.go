// Package activity provides the durable ring buffer that retains recent
// crew lifecycle events.
package activity

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kdkiss/CrewAI-Command-Center/internal/domain"
)

// Event is one retained activity entry. Data is an opaque JSON value
// snapshotted at record time.
type Event struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Store is a size- and age-bounded event log persisted to a single JSON
// file. All mutations rewrite the file atomically; persistence failures are
// logged and swallowed so observability never takes down ingestion.
type Store struct {
	mu        sync.Mutex
	events    []Event
	nextID    int64
	maxEvents int
	retention time.Duration
	path      string
	now       func() time.Time
}

type persistedBuffer struct {
	NextID int64   `json:"next_id"`
	Events []Event `json:"events"`
}

// NewStore creates a store and loads any previously persisted buffer.
// maxEvents <= 0 disables the count bound; retention <= 0 disables the age
// bound; an empty path disables persistence.
func NewStore(maxEvents int, retention time.Duration, path string) *Store {
	s := &Store{
		nextID:    1,
		maxEvents: maxEvents,
		retention: retention,
		path:      path,
		now:       time.Now,
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Printf("activity: could not create storage directory: %v", err)
		}
	}
	s.loadPersisted()
	return s
}

// Record appends a snapshot of payload under the given event type. Untracked
// event types are rejected by returning nil with no side effects.
func (s *Store) Record(eventType string, payload any) *Event {
	if !domain.EventType(eventType).Tracked() {
		return nil
	}

	snapshot := deepCopy(payload)
	timestamp := s.timestamp()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	entry := Event{
		ID:        s.nextID,
		Type:      eventType,
		Timestamp: timestamp,
		Data:      snapshot,
	}
	s.nextID++
	s.events = append(s.events, entry)
	s.enforceMaxLocked()
	s.persistLocked()

	return &entry
}

// Events returns a deep copy of the retained events after an implicit prune.
func (s *Store) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	out := make([]Event, len(s.events))
	for i, ev := range s.events {
		out[i] = ev
		out[i].Data = deepCopy(ev.Data)
	}
	return out
}

// Prune drops events older than the retention window and persists when
// anything was removed.
func (s *Store) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pruneLocked() {
		s.persistLocked()
	}
}

// RunPeriodicPrune invokes Prune on a fixed interval until ctx is done, so
// memory stays bounded even when no new events arrive.
func (s *Store) RunPeriodicPrune(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Prune()
		}
	}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *Store) pruneLocked() bool {
	if s.retention <= 0 {
		return false
	}

	cutoff := s.now().UTC().Add(-s.retention)
	removed := false
	for len(s.events) > 0 && s.parseTimestamp(s.events[0].Timestamp).Before(cutoff) {
		s.events = s.events[1:]
		removed = true
	}

	if removed {
		s.enforceMaxLocked()
	}
	return removed
}

func (s *Store) enforceMaxLocked() {
	if s.maxEvents <= 0 {
		return
	}
	if excess := len(s.events) - s.maxEvents; excess > 0 {
		s.events = s.events[excess:]
	}
}

func (s *Store) persistLocked() {
	if s.path == "" {
		return
	}

	payload := persistedBuffer{NextID: s.nextID, Events: s.events}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("activity: failed to encode history: %v", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Printf("activity: failed to persist history: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Printf("activity: failed to persist history: %v", err)
		_ = os.Remove(tmp)
	}
}

func (s *Store) loadPersisted() {
	if s.path == "" {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("activity: failed to load persisted history: %v", err)
		}
		return
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("activity: failed to load persisted history: %v", err)
		return
	}

	var candidates []any
	var nextID int64

	switch v := raw.(type) {
	case map[string]any:
		if list, ok := v["events"].([]any); ok {
			candidates = list
		}
		if id, ok := v["next_id"].(float64); ok {
			nextID = int64(id)
		}
	case []any:
		// Backwards compatibility with older payloads that stored a bare list.
		candidates = v
	default:
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = s.events[:0]
	for _, c := range candidates {
		if ev, ok := validEvent(c); ok {
			s.events = append(s.events, ev)
		}
	}
	s.pruneLocked()
	s.enforceMaxLocked()

	if nextID > 0 {
		s.nextID = nextID
		return
	}
	var maxID int64
	for _, ev := range s.events {
		if ev.ID > maxID {
			maxID = ev.ID
		}
	}
	s.nextID = maxID + 1
}

func (s *Store) parseTimestamp(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return s.now().UTC()
	}
	return ts
}

func validEvent(candidate any) (Event, bool) {
	obj, ok := candidate.(map[string]any)
	if !ok {
		return Event{}, false
	}

	eventType, ok := obj["type"].(string)
	if !ok {
		return Event{}, false
	}
	timestamp, ok := obj["timestamp"].(string)
	if !ok {
		return Event{}, false
	}
	data, ok := obj["data"]
	if !ok {
		return Event{}, false
	}

	ev := Event{Type: eventType, Timestamp: timestamp, Data: data}
	if id, ok := obj["id"].(float64); ok {
		ev.ID = int64(id)
	}
	return ev, true
}

// deepCopy snapshots a JSON-shaped value so later mutations by the caller
// never affect stored state.
func deepCopy(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopy(item)
		}
		return out
	case string, bool, float64, int, int64, float32:
		return v
	default:
		// Uncommon payload shapes (structs, typed maps) round-trip through
		// JSON so the stored value is fully detached.
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return v
		}
		return out
	}
}
