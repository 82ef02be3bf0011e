package metrics

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Notifier delivers named events to connected subscribers.
type Notifier interface {
	Emit(event string, payload any) error
}

// Sampler collects host resource statistics and publishes periodic
// system_stats events.
type Sampler struct {
	recorder       *Recorder
	includeHistory bool
	historyWindow  string
	now            func() time.Time
}

func NewSampler(recorder *Recorder, includeHistory bool, historyWindow string) *Sampler {
	return &Sampler{
		recorder:       recorder,
		includeHistory: includeHistory,
		historyWindow:  historyWindow,
		now:            time.Now,
	}
}

const bytesPerGiB = 1 << 30

// Collect gathers one snapshot of CPU, memory, and platform statistics,
// merges the request metrics summary, and records it into the rolling
// history when record is set.
func (s *Sampler) Collect(ctx context.Context, record bool) (map[string]any, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	usage := 0.0
	if len(percents) > 0 {
		usage = percents[0]
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu count: %w", err)
	}

	model := ""
	frequency := "N/A"
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		model = infos[0].ModelName
		if infos[0].Mhz > 0 {
			frequency = fmt.Sprintf("%.2f GHz", infos[0].Mhz/1000)
		}
	}

	memory, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory stats: %w", err)
	}
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read swap stats: %w", err)
	}

	bootEpoch, err := host.BootTimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot time: %w", err)
	}
	bootTime := time.Unix(int64(bootEpoch), 0).UTC()
	uptime := s.now().UTC().Sub(bootTime)

	osDescription := runtime.GOOS
	if info, err := host.InfoWithContext(ctx); err == nil {
		osDescription = fmt.Sprintf("%s %s %s", info.Platform, info.PlatformVersion, info.KernelVersion)
	}

	stats := map[string]any{
		"cpu": map[string]any{
			"usage":     round(usage, 1),
			"cores":     cores,
			"model":     model,
			"frequency": frequency,
		},
		"memory": map[string]any{
			"used":       round(float64(memory.Used)/bytesPerGiB, 1),
			"total":      round(float64(memory.Total)/bytesPerGiB, 1),
			"percent":    memory.UsedPercent,
			"available":  round(float64(memory.Available)/bytesPerGiB, 1),
			"swap_used":  round(float64(swap.Used)/bytesPerGiB, 1),
			"swap_total": round(float64(swap.Total)/bytesPerGiB, 1),
		},
		"os":         osDescription,
		"go_version": runtime.Version(),
		"uptime":     int(uptime.Seconds()),
		"boot_time":  bootTime.Format(time.RFC3339Nano),
	}
	for key, value := range s.recorder.RequestSummary() {
		stats[key] = value
	}

	if record {
		s.recorder.RecordSystemStats(stats)
	}
	return stats, nil
}

// AttachHistory adds the history payload to a stats snapshot when the
// sampler is configured to include it in socket broadcasts.
func (s *Sampler) AttachHistory(stats map[string]any) map[string]any {
	if !s.includeHistory {
		return stats
	}
	history, err := s.recorder.BuildHistoryPayload(s.historyWindow)
	if err != nil {
		log.Printf("metrics: unable to attach system stats history: %v", err)
		return stats
	}
	stats["history"] = history
	return stats
}

// Run publishes system_stats events every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context, interval time.Duration, notifier Notifier) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.Collect(ctx, true)
			if err != nil {
				log.Printf("metrics: failed to collect system stats: %v", err)
				continue
			}
			if err := notifier.Emit("system_stats", s.AttachHistory(stats)); err != nil {
				log.Printf("metrics: failed to broadcast system stats: %v", err)
			}
		}
	}
}
