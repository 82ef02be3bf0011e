package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8001, cfg.HTTPPort)
	assert.Equal(t, "crews", cfg.CrewsPath)
	assert.Equal(t, 500, cfg.ActivityMaxEvents)
	assert.Equal(t, time.Hour, cfg.ActivityRetention)
	assert.Equal(t, 5*time.Second, cfg.StatsInterval)
	assert.Equal(t, "1h", cfg.DefaultHistoryWindow)
	assert.False(t, cfg.StatsIncludeHistory)
	assert.Equal(t, 5*time.Minute, cfg.RequestMetricsWindow)
	assert.Empty(t, cfg.PolicyPath)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("CREWS_PATH", "/srv/crews")
	t.Setenv("SYSTEM_STATS_INTERVAL", "30")
	t.Setenv("SYSTEM_STATS_INCLUDE_HISTORY_IN_SOCKET", "true")
	t.Setenv("SYSTEM_STATS_DEFAULT_HISTORY_WINDOW", "24h")

	cfg := Load()

	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "/srv/crews", cfg.CrewsPath)
	assert.Equal(t, 30*time.Second, cfg.StatsInterval)
	assert.True(t, cfg.StatsIncludeHistory)
	assert.Equal(t, "24h", cfg.DefaultHistoryWindow)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("SYSTEM_STATS_INCLUDE_HISTORY_IN_SOCKET", "maybe")

	cfg := Load()

	assert.Equal(t, 8001, cfg.HTTPPort)
	assert.False(t, cfg.StatsIncludeHistory)
}
