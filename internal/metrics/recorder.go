package metrics

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"
)

// ErrUnsupportedWindow is returned when a history request names a window
// that is not offered.
var ErrUnsupportedWindow = errors.New("unsupported history window")

// historyWindows maps the window names offered by the history endpoint to
// their durations.
var historyWindows = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
}

// AvailableWindows lists the history window names in sorted order.
func AvailableWindows() []string {
	names := make([]string, 0, len(historyWindows))
	for name := range historyWindows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Recorder keeps rolling in-memory windows of request timings and system
// stats snapshots, mirrored to a persistent store.
type Recorder struct {
	mu             sync.Mutex
	store          *Store
	statsRetention time.Duration
	requestWindow  time.Duration
	stats          []StatSample
	requests       []RequestSample
	now            func() time.Time
}

// NewRecorder builds a recorder over store, rehydrating the in-memory
// windows from previously persisted samples.
func NewRecorder(store *Store, statsRetention, requestWindow time.Duration) *Recorder {
	r := &Recorder{
		store:          store,
		statsRetention: statsRetention,
		requestWindow:  requestWindow,
		now:            time.Now,
	}
	r.rehydrate()
	return r
}

func (r *Recorder) rehydrate() {
	now := r.now()
	if stats, err := r.store.StatsSince(now.Add(-r.statsRetention)); err != nil {
		log.Printf("metrics: failed to rehydrate system stats: %v", err)
	} else {
		r.stats = stats
	}
	if requests, err := r.store.RequestsSince(now.Add(-r.requestWindow)); err != nil {
		log.Printf("metrics: failed to rehydrate request metrics: %v", err)
	} else {
		r.requests = requests
	}
}

// RecordRequest records one timed request.
func (r *Recorder) RecordRequest(duration time.Duration, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneRequestsLocked(now)
	sample := RequestSample{Timestamp: now, Duration: duration, IsError: isError}
	r.requests = append(r.requests, sample)
	if err := r.store.AppendRequest(sample); err != nil {
		log.Printf("metrics: failed to persist request metric: %v", err)
	}
}

// RecordSystemStats records one system stats snapshot.
func (r *Recorder) RecordSystemStats(payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneStatsLocked(now)
	sample := StatSample{Timestamp: now, Payload: payload}
	r.stats = append(r.stats, sample)
	if err := r.store.AppendStat(sample); err != nil {
		log.Printf("metrics: failed to persist system stats: %v", err)
	}
}

func (r *Recorder) pruneRequestsLocked(now time.Time) {
	cutoff := now.Add(-r.requestWindow)
	idx := 0
	for idx < len(r.requests) && r.requests[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		r.requests = append([]RequestSample(nil), r.requests[idx:]...)
	}
	if err := r.store.PruneRequests(cutoff); err != nil {
		log.Printf("metrics: failed to prune request metrics: %v", err)
	}
}

func (r *Recorder) pruneStatsLocked(now time.Time) {
	cutoff := now.Add(-r.statsRetention)
	idx := 0
	for idx < len(r.stats) && r.stats[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		r.stats = append([]StatSample(nil), r.stats[idx:]...)
	}
	if err := r.store.PruneStats(cutoff); err != nil {
		log.Printf("metrics: failed to prune system stats: %v", err)
	}
}

// RequestSummary reports latency and error-rate aggregates over the request
// window.
func (r *Recorder) RequestSummary() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneRequestsLocked(r.now())

	windowSeconds := int(r.requestWindow / time.Second)
	total := len(r.requests)
	errorCount := 0
	durations := make([]float64, 0, total)
	for _, sample := range r.requests {
		durations = append(durations, float64(sample.Duration)/float64(time.Millisecond))
		if sample.IsError {
			errorCount++
		}
	}

	var averageMs, p95Ms, ratio float64
	if total > 0 {
		sum := 0.0
		for _, d := range durations {
			sum += d
		}
		averageMs = sum / float64(total)
		p95Ms = percentile(durations, 95)
		ratio = float64(errorCount) / float64(total)
	}

	return map[string]any{
		"latency": map[string]any{
			"averageMs":     round(averageMs, 2),
			"p95Ms":         round(p95Ms, 2),
			"sampleSize":    total,
			"windowSeconds": windowSeconds,
		},
		"errorRate": map[string]any{
			"ratio":         round(ratio, 4),
			"errors":        errorCount,
			"requests":      total,
			"windowSeconds": windowSeconds,
		},
	}
}

// percentile computes the p-th percentile of values with linear
// interpolation between closest ranks. values must be non-empty; it is
// sorted in place.
func percentile(values []float64, p float64) float64 {
	sort.Float64s(values)
	if len(values) == 1 {
		return values[0]
	}
	k := float64(len(values)-1) * p / 100
	lower := math.Floor(k)
	upper := math.Ceil(k)
	if lower == upper {
		return values[int(k)]
	}
	return values[int(lower)]*(upper-k) + values[int(upper)]*(k-lower)
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}

// BuildHistoryPayload assembles the time-series history for one named
// window, flattening every numeric metric in the retained snapshots to a
// dotted path.
func (r *Recorder) BuildHistoryPayload(window string) (map[string]any, error) {
	duration, ok := historyWindows[window]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedWindow, window)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneStatsLocked(now)

	cutoff := now.Add(-duration)
	series := make(map[string][]map[string]any)
	count := 0
	var oldest, newest time.Time
	for _, sample := range r.stats {
		if sample.Timestamp.Before(cutoff) {
			continue
		}
		count++
		if oldest.IsZero() || sample.Timestamp.Before(oldest) {
			oldest = sample.Timestamp
		}
		if sample.Timestamp.After(newest) {
			newest = sample.Timestamp
		}
		ts := sample.Timestamp.UTC().Format(time.RFC3339Nano)
		flattenNumeric("", sample.Payload, func(path string, value float64) {
			series[path] = append(series[path], map[string]any{
				"timestamp": ts,
				"value":     value,
			})
		})
	}

	payload := map[string]any{
		"window":            window,
		"available_windows": AvailableWindows(),
		"metrics":           series,
		"sample_count":      count,
		"retention_seconds": int(r.statsRetention / time.Second),
	}
	if count > 0 {
		payload["oldest_timestamp"] = oldest.UTC().Format(time.RFC3339Nano)
		payload["newest_timestamp"] = newest.UTC().Format(time.RFC3339Nano)
	} else {
		payload["oldest_timestamp"] = nil
		payload["newest_timestamp"] = nil
	}
	return payload, nil
}

// flattenNumeric walks nested maps and reports every numeric leaf under its
// dotted path. Booleans are not numeric here.
func flattenNumeric(prefix string, value any, visit func(path string, value float64)) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			flattenNumeric(path, child, visit)
		}
	case float64:
		visit(prefix, v)
	case float32:
		visit(prefix, float64(v))
	case int:
		visit(prefix, float64(v))
	case int64:
		visit(prefix, float64(v))
	case uint64:
		visit(prefix, float64(v))
	}
}
