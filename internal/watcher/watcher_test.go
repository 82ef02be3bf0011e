package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherFiresOnChange(t *testing.T) {
	root := t.TempDir()

	var calls atomic.Int32
	w, err := New(root, func() { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "marker"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()

	var calls atomic.Int32
	w, err := New(root, func() { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "marker"), []byte{byte(i)}, 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
	time.Sleep(debounceInterval * 2)
	require.LessOrEqual(t, calls.Load(), int32(2))
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()

	var calls atomic.Int32
	w, err := New(root, func() { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	crewDir := filepath.Join(root, "demo")
	require.NoError(t, os.MkdirAll(crewDir, 0o755))
	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)

	before := calls.Load()
	require.NoError(t, os.WriteFile(filepath.Join(crewDir, "file"), []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		return calls.Load() > before
	}, 3*time.Second, 50*time.Millisecond)
}
