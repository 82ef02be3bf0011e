package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdkiss/CrewAI-Command-Center/internal/activity"
	"github.com/kdkiss/CrewAI-Command-Center/internal/broadcast"
	"github.com/kdkiss/CrewAI-Command-Center/internal/runtime"
	"github.com/kdkiss/CrewAI-Command-Center/internal/storage"
)

type stubNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *stubNotifier) Emit(event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func newTestService(t *testing.T) (*Service, *stubNotifier, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.New(root)
	require.NoError(t, err)

	notifier := &stubNotifier{}
	history := activity.NewStore(100, time.Hour, filepath.Join(t.TempDir(), "history.json"))
	record := func(eventType string, payload any) { history.Record(eventType, payload) }
	broadcaster := broadcast.NewBroadcaster(notifier, record, 0)
	rt := runtime.New(store, broadcaster, notifier, nil, record)

	return New(store, rt, history, notifier), notifier, root
}

func TestStartCrewFailureEmitsCrewError(t *testing.T) {
	svc, notifier, _ := newTestService(t)

	_, err := svc.StartCrew(context.Background(), "ghost", nil)
	require.Error(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.events, "crew_error")

	events := svc.ActivityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "crew_error", events[0].Type)
}

func TestStopCrewAcknowledgesRequest(t *testing.T) {
	svc, notifier, _ := newTestService(t)

	svc.StopCrew("demo")

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.events, "stop_requested")

	events := svc.ActivityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "stop_requested", events[0].Type)
}

func TestListCrews(t *testing.T) {
	svc, _, root := newTestService(t)
	pkgDir := filepath.Join(root, "demo", "src", "demo")
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "main.py"), []byte("print('hi')\n"), 0o644))

	crews := svc.ListCrews()
	require.Len(t, crews, 1)
	assert.Equal(t, "demo", crews[0].ID)
}
