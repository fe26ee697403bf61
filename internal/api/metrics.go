package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Accounts      []AccountMetrics `json:"accounts"`
	Webhooks      *WebhookMetrics  `json:"webhooks,omitempty"`
	Devices       DeviceMetrics    `json:"devices"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// AccountMetrics contains per-account cloud statistics.
type AccountMetrics struct {
	ID            string `json:"id"`
	Connected     bool   `json:"connected"`
	Polls         uint64 `json:"polls"`
	PollFailures  uint64 `json:"poll_failures"`
	SkippedPolls  uint64 `json:"skipped_polls"`
	Breaker       string `json:"breaker"`
	RateRemaining int    `json:"rate_remaining"`
	Webhooks      int    `json:"webhooks"`
}

// WebhookMetrics counts inbound webhook payloads across accounts.
type WebhookMetrics struct {
	Applied   uint64 `json:"applied"`
	Duplicate uint64 `json:"duplicate"`
	Ignored   uint64 `json:"ignored"`
	Malformed uint64 `json:"malformed"`
	Unrouted  uint64 `json:"unrouted"`
}

// DeviceMetrics contains model statistics across accounts.
type DeviceMetrics struct {
	Total        int            `json:"total"`
	Zones        int            `json:"zones"`
	RunningZones int            `json:"running_zones"`
	ByStatus     map[string]int `json:"by_status"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Accounts: []AccountMetrics{},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Connected: s.mqtt.IsConnected(),
		}
	}

	health := s.bridge.Health()
	if in := health.WebhookIntake; in != nil {
		metrics.Webhooks = &WebhookMetrics{
			Applied:   in.Applied,
			Duplicate: in.Duplicate,
			Ignored:   in.Ignored,
			Malformed: in.Malformed,
			Unrouted:  in.Unrouted,
		}
	}

	for _, a := range health.Accounts {
		metrics.Accounts = append(metrics.Accounts, AccountMetrics{
			ID:            a.ID,
			Connected:     a.Connected,
			Polls:         a.Polls,
			PollFailures:  a.PollFailures,
			SkippedPolls:  a.SkippedPolls,
			Breaker:       a.Breaker,
			RateRemaining: a.RateRemaining,
			Webhooks:      a.Webhooks,
		})
	}

	devices := s.bridge.Devices()
	metrics.Devices = DeviceMetrics{
		Total:    len(devices),
		ByStatus: make(map[string]int),
	}
	for _, d := range devices {
		metrics.Devices.ByStatus[string(d.Status)]++
		metrics.Devices.Zones += len(d.Zones)
		for _, z := range d.Zones {
			if z.Running {
				metrics.Devices.RunningZones++
			}
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
