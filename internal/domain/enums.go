// Package domain defines the core domain models for the crew backend.
package domain

// EventType represents the type of a recorded activity event.
type EventType string

const (
	EventTypeCrewLog       EventType = "crew_log"
	EventTypeCrewStarted   EventType = "crew_started"
	EventTypeCrewStartAck  EventType = "crew_start_ack"
	EventTypeCrewStopped   EventType = "crew_stopped"
	EventTypeCrewError     EventType = "crew_error"
	EventTypeStopRequested EventType = "stop_requested"
)

// TrackedEventTypes is the fixed set of event types the activity store
// retains. Anything else is silently dropped on record.
var TrackedEventTypes = map[EventType]bool{
	EventTypeCrewLog:       true,
	EventTypeCrewStarted:   true,
	EventTypeCrewStartAck:  true,
	EventTypeCrewStopped:   true,
	EventTypeCrewError:     true,
	EventTypeStopRequested: true,
}

// Tracked reports whether the event type is retained by the activity store.
func (t EventType) Tracked() bool {
	return TrackedEventTypes[t]
}

// Category classifies a single crew log line.
type Category string

const (
	CategorySearch   Category = "SEARCH"
	CategoryAnalysis Category = "ANALYSIS"
	CategoryDecision Category = "DECISION"
	CategoryResult   Category = "RESULT"
	CategoryError    Category = "ERROR"
	CategoryAction   Category = "ACTION"
	CategoryInfo     Category = "INFO"
)

// Thinking reports whether the category opens a multi-line operation.
func (c Category) Thinking() bool {
	return c == CategorySearch || c == CategoryAnalysis || c == CategoryDecision
}

// OperationStatus represents the status of an inferred operation.
type OperationStatus string

const (
	OperationStatusInProgress OperationStatus = "in_progress"
	OperationStatusComplete   OperationStatus = "complete"
	OperationStatusError      OperationStatus = "error"
)

// CrewStatus represents the derived status of a crew.
type CrewStatus string

const (
	CrewStatusReady   CrewStatus = "ready"
	CrewStatusRunning CrewStatus = "running"
)
