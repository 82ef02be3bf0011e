package broadcast

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kdkiss/CrewAI-Command-Center/internal/domain"
)

// Notifier delivers named events to connected subscribers.
type Notifier interface {
	Emit(event string, payload any) error
}

// RecordFunc persists an event into the activity history.
type RecordFunc func(eventType string, payload any)

// Broadcaster turns raw subprocess output into classified, deduplicated
// crew_log events.
type Broadcaster struct {
	notifier Notifier
	record   RecordFunc
	dedup    *Deduplicator
	tracker  *OperationTracker
	now      func() time.Time
}

func NewBroadcaster(notifier Notifier, record RecordFunc, dedupWindow time.Duration) *Broadcaster {
	return &Broadcaster{
		notifier: notifier,
		record:   record,
		dedup:    NewDeduplicator(dedupWindow),
		tracker:  NewOperationTracker(),
		now:      time.Now,
	}
}

// StreamProcessLogs pumps stdout and stderr of a crew process until both
// close, then waits for the exit code and invokes onExit with it. It blocks
// and is meant to run in its own goroutine.
func (b *Broadcaster) StreamProcessLogs(ctx context.Context, crewID, processID string, stdout, stderr io.Reader, wait func() int, onExit func(int)) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.pump(ctx, crewID, processID, stdout, "info")
	}()
	go func() {
		defer wg.Done()
		b.pump(ctx, crewID, processID, stderr, "error")
	}()
	wg.Wait()

	code := wait()
	if onExit != nil {
		onExit(code)
	}
}

func (b *Broadcaster) pump(ctx context.Context, crewID, processID string, r io.Reader, level string) {
	if r == nil {
		return
	}
	reader := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return
		}
		// ReadString tolerates lines of any length, so a single huge line
		// cannot stall the pipe or truncate the stream.
		line, err := reader.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			b.Publish(crewID, processID, strings.ToValidUTF8(trimmed, "�"), level)
		}
		if err != nil {
			if err != io.EOF {
				b.Publish(crewID, processID, fmt.Sprintf("[Decode Error: %v]", err), "error")
			}
			return
		}
	}
}

// Publish classifies a single log line and broadcasts it. Every line
// advances the operation state machine; lines repeated inside the
// deduplication window are counted but not re-broadcast.
func (b *Broadcaster) Publish(crewID, processID, message, level string) {
	category := Categorize(message)
	agent := ExtractAgent(message, "system")

	opID, seq := b.tracker.Observe(category, agent)

	dup, count := b.dedup.Observe(message, agent)
	if dup && count > 1 {
		return
	}

	entry := domain.LogEntry{
		CrewID:         crewID,
		Message:        message,
		Level:          level,
		Timestamp:      b.now().UTC().Format(time.RFC3339Nano),
		Category:       category,
		Agent:          agent,
		Sequence:       seq,
		IsDuplicate:    dup,
		DuplicateCount: count,
	}
	if opID != "" {
		entry.OperationID = &opID
	}

	if b.record != nil {
		b.record(string(domain.EventTypeCrewLog), entry)
	}
	if err := b.notifier.Emit(string(domain.EventTypeCrewLog), entry); err != nil {
		log.Printf("broadcast: emit crew_log for %s failed: %v", crewID, err)
	}
}

// Cleanup drops stale deduplication entries and expired finished operations.
func (b *Broadcaster) Cleanup() {
	b.dedup.Cleanup()
	b.tracker.Cleanup()
}
