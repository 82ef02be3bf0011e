package broadcast

import (
	"fmt"
	"sync"
	"time"

	"github.com/kdkiss/CrewAI-Command-Center/internal/domain"
)

const operationRetention = time.Hour

// OperationTracker groups consecutive log lines into operations. A
// "thinking" category (search, analysis, decision) opens an operation when
// none is open; a result closes it. A single operation is open at a time,
// shared across every stream the broadcaster carries.
type OperationTracker struct {
	mu      sync.Mutex
	current string                       // open operation id, empty when idle
	ops     map[string]*domain.Operation // operation id -> state
	now     func() time.Time
}

func NewOperationTracker() *OperationTracker {
	return &OperationTracker{
		ops: make(map[string]*domain.Operation),
		now: time.Now,
	}
}

// Observe advances the operation state machine for one log line and returns
// the operation id the line belongs to (empty when none) and its sequence
// number within the operation (zero when none).
func (t *OperationTracker) Observe(category domain.Category, agent string) (string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	opID := t.current

	if opID == "" {
		if !category.Thinking() {
			return "", 0
		}
		now := t.now()
		opID = fmt.Sprintf("op_%d", now.UnixNano())
		t.ops[opID] = &domain.Operation{
			Type:      category,
			Agent:     agent,
			Status:    domain.OperationStatusInProgress,
			StartTime: now,
		}
		t.current = opID
	}

	op := t.ops[opID]
	op.Sequence++
	seq := op.Sequence

	if category == domain.CategoryResult {
		now := t.now()
		op.Status = domain.OperationStatusComplete
		op.EndTime = &now
		t.current = ""
		// The closing line carries a sequence but is not attributed to
		// the operation it closed.
		return "", seq
	}
	return opID, seq
}

// Operation returns a snapshot of a tracked operation.
func (t *OperationTracker) Operation(id string) (domain.Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok {
		return domain.Operation{}, false
	}
	return *op, true
}

// Cleanup evicts finished operations that ended more than an hour ago.
func (t *OperationTracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for id, op := range t.ops {
		if op.EndTime != nil && now.Sub(*op.EndTime) >= operationRetention {
			delete(t.ops, id)
		}
	}
}
