// Package config provides configuration for the crew backend.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the backend configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Crew storage
	CrewsPath string

	// Activity history ring buffer
	ActivityMaxEvents   int
	ActivityRetention   time.Duration
	ActivityPruneEvery  time.Duration
	ActivityStoragePath string

	// Metrics persistence
	MetricsDBPath string

	// System stats sampling
	StatsInterval        time.Duration
	StatsRetention       time.Duration
	DefaultHistoryWindow string
	StatsIncludeHistory  bool

	// Request metrics rolling window
	RequestMetricsWindow time.Duration

	// Launch policy (empty means built-in default policy)
	PolicyPath string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8001),
		CrewsPath:            getEnv("CREWS_PATH", "crews"),
		ActivityMaxEvents:    getEnvInt("ACTIVITY_HISTORY_MAX_EVENTS", 500),
		ActivityRetention:    getEnvSeconds("ACTIVITY_HISTORY_RETENTION_SECONDS", 3600),
		ActivityPruneEvery:   getEnvSeconds("ACTIVITY_HISTORY_PRUNE_INTERVAL", 60),
		ActivityStoragePath:  getEnv("ACTIVITY_HISTORY_STORAGE_PATH", "data/activity_history.json"),
		MetricsDBPath:        getEnv("METRICS_DB_PATH", "data/metrics.db"),
		StatsInterval:        getEnvSeconds("SYSTEM_STATS_INTERVAL", 5),
		StatsRetention:       getEnvSeconds("SYSTEM_STATS_RETENTION_SECONDS", 86400),
		DefaultHistoryWindow: getEnv("SYSTEM_STATS_DEFAULT_HISTORY_WINDOW", "1h"),
		StatsIncludeHistory:  getEnvBool("SYSTEM_STATS_INCLUDE_HISTORY_IN_SOCKET", false),
		RequestMetricsWindow: getEnvSeconds("REQUEST_METRICS_WINDOW_SECONDS", 300),
		PolicyPath:           getEnv("LAUNCH_POLICY_PATH", ""),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvSeconds(key string, defaultVal int) time.Duration {
	return time.Duration(getEnvInt(key, defaultVal)) * time.Second
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		switch val {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}
