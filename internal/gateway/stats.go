package gateway

import (
	"runtime"
	"time"
)

// Stats is the gateway's operational snapshot served on /api/v1/stats.
type Stats struct {
	Connections   int          `json:"connections"`
	Subscriptions int          `json:"subscriptions"`
	Symbols       []string     `json:"symbols"`
	Latency       LatencyStats `json:"fanout_latency"`
	Goroutines    int          `json:"goroutines"`
	HeapAllocMB   float64      `json:"heap_alloc_mb"`
	SysMB         float64      `json:"sys_mb"`
	GCRuns        uint32       `json:"gc_runs"`
	UptimeSec     int64        `json:"uptime_sec"`
	TS            time.Time    `json:"ts"`
}

// Stats collects the current snapshot. start is the process start time.
func (h *Hub) Stats(start time.Time) Stats {
	s := Stats{
		Connections:   h.Registry.ConnectionCount(),
		Subscriptions: h.Registry.SubscriptionCount(),
		Symbols:       h.Registry.Symbols(),
		Latency:       h.Latency.Stats(),
		Goroutines:    runtime.NumGoroutine(),
		UptimeSec:     int64(time.Since(start).Seconds()),
		TS:            time.Now().UTC(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	s.SysMB = float64(ms.Sys) / 1024 / 1024
	s.GCRuns = ms.NumGC
	return s
}
