// Package metrics provides observability for the survival server.
// The collector is cheap enough to leave on in production; the tick loop
// and the persistence synchronizer both report into it.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Persistence metrics
	SavesWritten  int64
	SaveLatSum    int64
	SaveLatMax    int64
	SaveErrors    int64

	// Thirst core metrics
	DamageEvents  int64
	ConfigReloads int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordSave records a durable write of one survivor's thirst record.
func (c *Collector) RecordSave(latency time.Duration, err error) {
	atomic.AddInt64(&c.SavesWritten, 1)
	atomic.AddInt64(&c.SaveLatSum, int64(latency))

	if int64(latency) > atomic.LoadInt64(&c.SaveLatMax) {
		atomic.StoreInt64(&c.SaveLatMax, int64(latency))
	}

	if err != nil {
		atomic.AddInt64(&c.SaveErrors, 1)
	}
}

// RecordDamage records one threshold damage application.
func (c *Collector) RecordDamage() {
	atomic.AddInt64(&c.DamageEvents, 1)
}

// RecordReload records one configuration reload.
func (c *Collector) RecordReload() {
	atomic.AddInt64(&c.ConfigReloads, 1)
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	savesWritten := atomic.LoadInt64(&c.SavesWritten)

	var tickAvg, saveAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if savesWritten > 0 {
		saveAvg = float64(atomic.LoadInt64(&c.SaveLatSum)) / float64(savesWritten) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"saves": map[string]interface{}{
			"written":          savesWritten,
			"avg_write_lat_ms": saveAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.SaveLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.SaveErrors),
		},

		"thirst": map[string]interface{}{
			"damage_events":  atomic.LoadInt64(&c.DamageEvents),
			"config_reloads": atomic.LoadInt64(&c.ConfigReloads),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		fmt.Fprintf(w, "# HELP ars_tick_count Total tick cycles\n")
		fmt.Fprintf(w, "# TYPE ars_tick_count counter\n")
		fmt.Fprintf(w, "ars_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP ars_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE ars_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "ars_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP ars_saves_written Total thirst records written\n")
		fmt.Fprintf(w, "# TYPE ars_saves_written counter\n")
		fmt.Fprintf(w, "ars_saves_written %d\n\n", atomic.LoadInt64(&c.SavesWritten))

		fmt.Fprintf(w, "# HELP ars_save_errors Total thirst record write errors\n")
		fmt.Fprintf(w, "# TYPE ars_save_errors counter\n")
		fmt.Fprintf(w, "ars_save_errors %d\n\n", atomic.LoadInt64(&c.SaveErrors))

		fmt.Fprintf(w, "# HELP ars_damage_events Total threshold damage applications\n")
		fmt.Fprintf(w, "# TYPE ars_damage_events counter\n")
		fmt.Fprintf(w, "ars_damage_events %d\n\n", atomic.LoadInt64(&c.DamageEvents))

		fmt.Fprintf(w, "# HELP ars_config_reloads Total configuration reloads\n")
		fmt.Fprintf(w, "# TYPE ars_config_reloads counter\n")
		fmt.Fprintf(w, "ars_config_reloads %d\n\n", atomic.LoadInt64(&c.ConfigReloads))

		fmt.Fprintf(w, "# HELP ars_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE ars_ws_connections gauge\n")
		fmt.Fprintf(w, "ars_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP ars_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE ars_ws_messages_total counter\n")
		fmt.Fprintf(w, "ars_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "ars_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
