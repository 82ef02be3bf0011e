package domain

import "time"

// LogEntry is one classified line of crew output as pushed to subscribers.
// Field names follow the wire format expected by the frontend.
type LogEntry struct {
	CrewID         string   `json:"crewId"`
	Message        string   `json:"message"`
	Level          string   `json:"level"` // info or error
	Timestamp      string   `json:"timestamp"`
	Category       Category `json:"category"`
	Agent          string   `json:"agent"`
	OperationID    *string  `json:"operationId"`
	Sequence       int      `json:"sequence"`
	IsDuplicate    bool     `json:"isDuplicate"`
	DuplicateCount int      `json:"duplicateCount"`
}

// Operation is an inferred multi-line grouping of log output belonging to
// one thinking episode (search/analysis/decision) through to its result.
type Operation struct {
	Type      Category        `json:"type"`
	Agent     string          `json:"agent,omitempty"`
	StartTime time.Time       `json:"start_time"`
	Status    OperationStatus `json:"status"`
	Sequence  int             `json:"sequence"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
}

// Crew is the directory-derived summary of one crew used by list and
// refresh payloads.
type Crew struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Status CrewStatus `json:"status"`
}
