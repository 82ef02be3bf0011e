package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreStatsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendStat(StatSample{
		Timestamp: base,
		Payload:   map[string]any{"cpu": map[string]any{"usage": 12.5}},
	}))
	require.NoError(t, store.AppendStat(StatSample{
		Timestamp: base.Add(time.Minute),
		Payload:   map[string]any{"cpu": map[string]any{"usage": 50.0}},
	}))

	samples, err := store.StatsSince(base)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.True(t, samples[0].Timestamp.Equal(base))
	cpu := samples[0].Payload["cpu"].(map[string]any)
	assert.Equal(t, 12.5, cpu["usage"])
}

func TestStoreStatsSinceExcludesOlder(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendStat(StatSample{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Payload:   map[string]any{"n": float64(i)},
		}))
	}

	samples, err := store.StatsSince(base.Add(3 * time.Minute))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 3.0, samples[0].Payload["n"])
}

func TestStorePruneStats(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendStat(StatSample{Timestamp: base, Payload: map[string]any{}}))
	require.NoError(t, store.AppendStat(StatSample{Timestamp: base.Add(time.Hour), Payload: map[string]any{}}))
	require.NoError(t, store.PruneStats(base.Add(time.Minute)))

	samples, err := store.StatsSince(base)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, samples[0].Timestamp.Equal(base.Add(time.Hour)))
}

func TestStoreRequestsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendRequest(RequestSample{
		Timestamp: base,
		Duration:  42 * time.Millisecond,
		IsError:   false,
	}))
	require.NoError(t, store.AppendRequest(RequestSample{
		Timestamp: base.Add(time.Second),
		Duration:  100 * time.Millisecond,
		IsError:   true,
	}))

	samples, err := store.RequestsSince(base)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 42*time.Millisecond, samples[0].Duration)
	assert.False(t, samples[0].IsError)
	assert.True(t, samples[1].IsError)
}

func TestStorePruneRequests(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendRequest(RequestSample{Timestamp: base, Duration: time.Millisecond}))
	require.NoError(t, store.AppendRequest(RequestSample{Timestamp: base.Add(time.Minute), Duration: time.Millisecond}))
	require.NoError(t, store.PruneRequests(base.Add(30*time.Second)))

	samples, err := store.RequestsSince(base)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, samples[0].Timestamp.Equal(base.Add(time.Minute)))
}
