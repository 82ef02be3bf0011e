// Package metrics records request latency and system resource samples, keeps
// a rolling in-memory window for summaries, and persists samples to SQLite so
// history survives restarts.
package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timestampLayout is fixed-width so lexicographic comparison in SQL matches
// chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// StatSample is one persisted system stats snapshot.
type StatSample struct {
	Timestamp time.Time
	Payload   map[string]any
}

// RequestSample is one persisted request timing.
type RequestSample struct {
	Timestamp time.Time
	Duration  time.Duration
	IsError   bool
}

// Store persists metric samples to SQLite.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// NewStore opens (creating if needed) the metrics database at dsn.
func NewStore(dsn string) (*Store, error) {
	if dsn != ":memory:" && !strings.Contains(dsn, "mode=memory") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create metrics directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate metrics database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS system_stats (
			timestamp TEXT NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_system_stats_timestamp ON system_stats(timestamp)`,
		`CREATE TABLE IF NOT EXISTS request_metrics (
			timestamp TEXT NOT NULL,
			duration_ms REAL NOT NULL,
			is_error INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_metrics_timestamp ON request_metrics(timestamp)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendStat persists one system stats snapshot.
func (s *Store) AppendStat(sample StatSample) error {
	payload, err := json.Marshal(sample.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode stats payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT INTO system_stats (timestamp, payload) VALUES (?, ?)`,
		sample.Timestamp.UTC().Format(timestampLayout), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert system stats: %w", err)
	}
	return nil
}

// AppendRequest persists one request timing.
func (s *Store) AppendRequest(sample RequestSample) error {
	isError := 0
	if sample.IsError {
		isError = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO request_metrics (timestamp, duration_ms, is_error) VALUES (?, ?, ?)`,
		sample.Timestamp.UTC().Format(timestampLayout),
		float64(sample.Duration)/float64(time.Millisecond),
		isError,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request metric: %w", err)
	}
	return nil
}

// PruneStats deletes snapshots older than cutoff.
func (s *Store) PruneStats(cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`DELETE FROM system_stats WHERE timestamp < ?`,
		cutoff.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to prune system stats: %w", err)
	}
	return nil
}

// PruneRequests deletes request timings older than cutoff.
func (s *Store) PruneRequests(cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`DELETE FROM request_metrics WHERE timestamp < ?`,
		cutoff.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to prune request metrics: %w", err)
	}
	return nil
}

// StatsSince returns snapshots at or after cutoff in chronological order.
func (s *Store) StatsSince(cutoff time.Time) ([]StatSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT timestamp, payload FROM system_stats WHERE timestamp >= ? ORDER BY timestamp ASC`,
		cutoff.UTC().Format(timestampLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query system stats: %w", err)
	}
	defer rows.Close()

	var samples []StatSample
	for rows.Next() {
		var ts, payload string
		if err := rows.Scan(&ts, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan system stats row: %w", err)
		}
		parsed, err := time.Parse(timestampLayout, ts)
		if err != nil {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(payload), &data); err != nil {
			continue
		}
		samples = append(samples, StatSample{Timestamp: parsed, Payload: data})
	}
	return samples, rows.Err()
}

// RequestsSince returns request timings at or after cutoff in chronological
// order.
func (s *Store) RequestsSince(cutoff time.Time) ([]RequestSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT timestamp, duration_ms, is_error FROM request_metrics WHERE timestamp >= ? ORDER BY timestamp ASC`,
		cutoff.UTC().Format(timestampLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query request metrics: %w", err)
	}
	defer rows.Close()

	var samples []RequestSample
	for rows.Next() {
		var ts string
		var durationMs float64
		var isError int
		if err := rows.Scan(&ts, &durationMs, &isError); err != nil {
			return nil, fmt.Errorf("failed to scan request metrics row: %w", err)
		}
		parsed, err := time.Parse(timestampLayout, ts)
		if err != nil {
			continue
		}
		samples = append(samples, RequestSample{
			Timestamp: parsed,
			Duration:  time.Duration(durationMs * float64(time.Millisecond)),
			IsError:   isError != 0,
		})
	}
	return samples, rows.Err()
}
