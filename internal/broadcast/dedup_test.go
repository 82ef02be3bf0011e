package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicatorCountsInsideWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(5 * time.Second)
	d.now = func() time.Time { return now }

	dup, count := d.Observe("msg", "system")
	assert.False(t, dup)
	assert.Equal(t, 1, count)

	now = now.Add(2 * time.Second)
	dup, count = d.Observe("msg", "system")
	assert.True(t, dup)
	assert.Equal(t, 2, count)

	now = now.Add(2 * time.Second)
	dup, count = d.Observe("msg", "system")
	assert.True(t, dup)
	assert.Equal(t, 3, count)
}

func TestDeduplicatorResetsAfterWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(5 * time.Second)
	d.now = func() time.Time { return now }

	d.Observe("msg", "system")

	now = now.Add(5 * time.Second)
	dup, count := d.Observe("msg", "system")
	assert.False(t, dup)
	assert.Equal(t, 1, count)
}

func TestDeduplicatorWindowSlidesWithRepeats(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(5 * time.Second)
	d.now = func() time.Time { return now }

	d.Observe("msg", "system")
	now = now.Add(4 * time.Second)
	d.Observe("msg", "system")
	// 8s after the first sighting but only 4s after the latest.
	now = now.Add(4 * time.Second)
	dup, count := d.Observe("msg", "system")
	assert.True(t, dup)
	assert.Equal(t, 3, count)
}

func TestDeduplicatorKeyIncludesAgent(t *testing.T) {
	d := NewDeduplicator(5 * time.Second)

	d.Observe("msg", "alpha")
	dup, count := d.Observe("msg", "beta")
	assert.False(t, dup)
	assert.Equal(t, 1, count)
}

func TestDeduplicatorCleanupKeepsEntryAtWindowBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(5 * time.Second)
	d.now = func() time.Time { return now }

	d.Observe("edge", "system")

	// Exactly window old: kept. Strictly older: dropped.
	now = now.Add(5 * time.Second)
	d.Cleanup()
	assert.Len(t, d.entries, 1)

	now = now.Add(time.Nanosecond)
	d.Cleanup()
	assert.Empty(t, d.entries)
}

func TestDeduplicatorCleanup(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDeduplicator(5 * time.Second)
	d.now = func() time.Time { return now }

	d.Observe("old", "system")
	now = now.Add(3 * time.Second)
	d.Observe("fresh", "system")

	now = now.Add(3 * time.Second)
	d.Cleanup()

	assert.Len(t, d.entries, 1)
	_, ok := d.entries[dedupKey{message: "fresh", agent: "system"}]
	assert.True(t, ok)
}
