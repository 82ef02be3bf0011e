// Package service composes the crew backend collaborators behind one facade
// shared by the HTTP and WebSocket surfaces.
package service

import (
	"context"
	"log"

	"github.com/kdkiss/CrewAI-Command-Center/internal/activity"
	"github.com/kdkiss/CrewAI-Command-Center/internal/broadcast"
	"github.com/kdkiss/CrewAI-Command-Center/internal/domain"
	"github.com/kdkiss/CrewAI-Command-Center/internal/runtime"
	"github.com/kdkiss/CrewAI-Command-Center/internal/storage"
)

// Service orchestrates crew lifecycle operations.
type Service struct {
	storage  *storage.Storage
	runtime  *runtime.Runtime
	activity *activity.Store
	notifier broadcast.Notifier
}

func New(store *storage.Storage, rt *runtime.Runtime, history *activity.Store, notifier broadcast.Notifier) *Service {
	return &Service{
		storage:  store,
		runtime:  rt,
		activity: history,
		notifier: notifier,
	}
}

// RecordActivity stores an event in the activity history. Failures never
// propagate.
func (s *Service) RecordActivity(eventType string, payload any) {
	s.activity.Record(eventType, payload)
}

// ActivityEvents returns the retained activity history.
func (s *Service) ActivityEvents() []activity.Event {
	return s.activity.Events()
}

// ListCrews returns every crew with its derived status.
func (s *Service) ListCrews() []domain.Crew {
	return s.storage.ListCrews(s.runtime.RunningIDs())
}

// StartCrew launches a crew. Any failure is mirrored to subscribers as a
// crew_error event before it is returned to the caller.
func (s *Service) StartCrew(ctx context.Context, crewID string, inputs map[string]any) (string, error) {
	processID, err := s.runtime.Start(ctx, crewID, inputs)
	if err != nil {
		payload := map[string]any{
			"crew_id": crewID,
			"error":   err.Error(),
			"status":  "error",
		}
		s.RecordActivity(string(domain.EventTypeCrewError), payload)
		if emitErr := s.notifier.Emit(string(domain.EventTypeCrewError), payload); emitErr != nil {
			log.Printf("service: error emitting crew_error for %s: %v", crewID, emitErr)
		}
		return "", err
	}
	return processID, nil
}

// StopCrew requests termination of a crew and acknowledges the request with
// a stop_requested event. The final crew_stopped event follows when the
// process actually exits.
func (s *Service) StopCrew(crewID string) {
	s.runtime.Stop(crewID)

	payload := map[string]any{
		"crew_id": crewID,
		"status":  "stopping",
	}
	s.RecordActivity(string(domain.EventTypeStopRequested), payload)
	if err := s.notifier.Emit(string(domain.EventTypeStopRequested), payload); err != nil {
		log.Printf("service: error emitting stop_requested for %s: %v", crewID, err)
	}
}
