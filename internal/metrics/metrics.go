// Package metrics collects and exposes LabThings server observability data.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (per-action counters + time series),
//     usable without any external dependency. JSONHandler and
//     TimeSeriesHandler serve it as JSON; internal/httpserver mounts
//     neither.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems (Grafana, Alertmanager, etc.); this is what the
//     server serves at GET /metrics.
//
// Keeping both lets a single-instrument server keep counters with zero
// monitoring infrastructure while still exposing a real /metrics endpoint
// for larger deployments that run a Prometheus sidecar.
//
// # Concurrency — hot path
//
// RecordInvocation is called from the invocation manager on every terminal
// state transition and must be as fast as possible. It uses atomic
// increments for global counters and dispatches a lightweight event onto a
// buffered channel (tsChan) for the time-series worker to process
// asynchronously. This avoids holding any lock on the hot path.
//
// The per-action ActionMetrics struct also uses atomic operations
// exclusively; the sync.Map that stores the per-action entries is
// read-heavy and write-once-per-new-action, which is the ideal use case
// for sync.Map.
//
// # Invariants
//
//   - TotalInvocations == CompletedInvocations + CancelledInvocations + ErroredInvocations
//     (maintained by RecordInvocation).
//   - The time-series ring buffer holds at most timeSeriesBucketCount buckets
//     (24 * 60 = 1440 for the last 24 hours at 1-minute granularity).
//   - tsChan capacity is 8192 events; events dropped when full are counted
//     in tsDroppedEvents for observability.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	timeSeriesBucketDuration = time.Minute
	timeSeriesBucketCount    = 24 * 60
)

// TimeSeriesBucket stores metrics for a single time bucket.
type TimeSeriesBucket struct {
	Timestamp    time.Time
	Invocations  int64
	Errors       int64
	TotalLatency int64
	Count        int64 // for calculating avg
}

// Metrics collects and exposes LabThings runtime metrics.
type Metrics struct {
	// Invocation metrics
	TotalInvocations     atomic.Int64
	CompletedInvocations atomic.Int64
	CancelledInvocations atomic.Int64
	ErroredInvocations   atomic.Int64

	// Latency metrics (in milliseconds, RUNNING to terminal)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	// Property access metrics
	PropertyReads      atomic.Int64
	PropertyWrites     atomic.Int64
	PropertyWriteFails atomic.Int64

	// Observation bus metrics
	ObservationMessages    atomic.Int64
	ObservationSubscribers atomic.Int64

	// Settings persistence metrics
	SettingsSaves     atomic.Int64
	SettingsSaveErrors atomic.Int64

	// Per-action metrics, keyed by "thing/action"
	actionMetrics sync.Map // string -> *ActionMetrics

	// Time-series data (minute buckets for last 24 hours)
	timeSeriesMu    sync.RWMutex
	timeSeries      []*TimeSeriesBucket
	tsChan          chan timeSeriesEvent
	tsDroppedEvents atomic.Int64

	startTime time.Time
}

// timeSeriesEvent is sent over a channel to avoid write-lock contention on the hot path.
type timeSeriesEvent struct {
	durationMs int64
	isError    bool
}

// ActionMetrics tracks metrics for a single action on a single Thing.
type ActionMetrics struct {
	Invocations atomic.Int64
	Completed   atomic.Int64
	Cancelled   atomic.Int64
	Errored     atomic.Int64
	TotalMs     atomic.Int64
	MinMs       atomic.Int64
	MaxMs       atomic.Int64
}

// Global metrics instance.
var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1)) // Max int64
	global.tsChan = make(chan timeSeriesEvent, 8192)
	global.initTimeSeries()
	go global.processTimeSeriesLoop()
}

// initTimeSeries initializes minute-level buckets for the last 24 hours.
func (m *Metrics) initTimeSeries() {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)
	m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
	for i := 0; i < timeSeriesBucketCount; i++ {
		m.timeSeries[i] = &TimeSeriesBucket{
			Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
		}
	}
}

// Global returns the global metrics instance.
func Global() *Metrics {
	return global
}

// StartTime returns the time when the metrics system was initialized.
func StartTime() time.Time {
	return global.startTime
}

// RecordInvocation records a terminal invocation outcome: status is one of
// "completed", "cancelled", or "error". thing/action are used only to key
// the Prometheus labels and per-action breakdown.
func (m *Metrics) RecordInvocation(thing, action, status string, durationMs int64) {
	m.TotalInvocations.Add(1)

	switch status {
	case "completed":
		m.CompletedInvocations.Add(1)
	case "cancelled":
		m.CancelledInvocations.Add(1)
	default:
		m.ErroredInvocations.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	am := m.getActionMetrics(thing + "/" + action)
	am.Invocations.Add(1)
	switch status {
	case "completed":
		am.Completed.Add(1)
	case "cancelled":
		am.Cancelled.Add(1)
	default:
		am.Errored.Add(1)
	}
	am.TotalMs.Add(durationMs)
	updateMin(&am.MinMs, durationMs)
	updateMax(&am.MaxMs, durationMs)

	m.recordTimeSeries(durationMs, status == "error")

	RecordInvocation(thing, action, status, durationMs)
}

// RecordPropertyRead records a property read for the JSON metrics endpoint.
func (m *Metrics) RecordPropertyRead(thing, property string) {
	m.PropertyReads.Add(1)
	RecordPropertyRead(thing, property)
}

// RecordPropertyWrite records a property write attempt and whether it succeeded.
func (m *Metrics) RecordPropertyWrite(thing, property string, ok bool) {
	m.PropertyWrites.Add(1)
	result := "ok"
	if !ok {
		m.PropertyWriteFails.Add(1)
		result = "validation_failed"
	}
	RecordPropertyWrite(thing, property, result)
}

// RecordObservationMessage records a message published on the observation bus.
func (m *Metrics) RecordObservationMessage(thing, kind string) {
	m.ObservationMessages.Add(1)
	RecordObservationMessage(thing, kind)
}

// RecordSettingsSave records a settings persistence write.
func (m *Metrics) RecordSettingsSave(thing string, err error) {
	m.SettingsSaves.Add(1)
	if err != nil {
		m.SettingsSaveErrors.Add(1)
	}
	RecordSettingsSave(thing, err)
}

// recordTimeSeries enqueues a time-series event for async processing,
// avoiding a write-lock on the hot invocation path.
func (m *Metrics) recordTimeSeries(durationMs int64, isError bool) {
	select {
	case m.tsChan <- timeSeriesEvent{durationMs: durationMs, isError: isError}:
	default:
		m.tsDroppedEvents.Add(1)
	}
}

// processTimeSeriesLoop drains tsChan and applies events under a write lock.
func (m *Metrics) processTimeSeriesLoop() {
	for evt := range m.tsChan {
		m.applyTimeSeriesEvent(evt.durationMs, evt.isError)
	}
}

// applyTimeSeriesEvent updates the time-series buckets (must be called from a single goroutine).
func (m *Metrics) applyTimeSeriesEvent(durationMs int64, isError bool) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)

	if len(m.timeSeries) > 0 {
		lastBucket := m.timeSeries[len(m.timeSeries)-1]
		bucketsDiff := int(now.Sub(lastBucket.Timestamp) / timeSeriesBucketDuration)

		if bucketsDiff > 0 {
			if bucketsDiff >= timeSeriesBucketCount {
				m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
				for i := 0; i < timeSeriesBucketCount; i++ {
					m.timeSeries[i] = &TimeSeriesBucket{
						Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
					}
				}
			} else {
				m.timeSeries = m.timeSeries[bucketsDiff:]
				for i := 0; i < bucketsDiff; i++ {
					m.timeSeries = append(m.timeSeries, &TimeSeriesBucket{
						Timestamp: lastBucket.Timestamp.Add(time.Duration(i+1) * timeSeriesBucketDuration),
					})
				}
			}
		}
	}

	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Invocations++
		bucket.TotalLatency += durationMs
		bucket.Count++
		if isError {
			bucket.Errors++
		}
	}
}

func (m *Metrics) getActionMetrics(key string) *ActionMetrics {
	if v, ok := m.actionMetrics.Load(key); ok {
		return v.(*ActionMetrics)
	}

	am := &ActionMetrics{}
	am.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.actionMetrics.LoadOrStore(key, am)
	return actual.(*ActionMetrics)
}

// GetActionMetrics returns the metrics for a specific "thing/action" key (or
// nil if none recorded yet).
func (m *Metrics) GetActionMetrics(key string) *ActionMetrics {
	if v, ok := m.actionMetrics.Load(key); ok {
		return v.(*ActionMetrics)
	}
	return nil
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.TotalInvocations.Load()
	avgLatency := float64(0)
	if total > 0 {
		avgLatency = float64(m.TotalLatencyMs.Load()) / float64(total)
	}

	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	result := map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"invocations": map[string]interface{}{
			"total":     total,
			"completed": m.CompletedInvocations.Load(),
			"cancelled": m.CancelledInvocations.Load(),
			"errored":   m.ErroredInvocations.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avgLatency,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"properties": map[string]interface{}{
			"reads":       m.PropertyReads.Load(),
			"writes":      m.PropertyWrites.Load(),
			"write_fails": m.PropertyWriteFails.Load(),
		},
		"observation": map[string]interface{}{
			"messages":    m.ObservationMessages.Load(),
			"subscribers": m.ObservationSubscribers.Load(),
		},
		"settings": map[string]interface{}{
			"saves":       m.SettingsSaves.Load(),
			"save_errors": m.SettingsSaveErrors.Load(),
		},
		"ts_dropped_events": m.tsDroppedEvents.Load(),
	}

	return result
}

// ActionStats returns per-action metrics, keyed by "thing/action".
func (m *Metrics) ActionStats() map[string]interface{} {
	result := make(map[string]interface{})

	m.actionMetrics.Range(func(key, value interface{}) bool {
		name := key.(string)
		am := value.(*ActionMetrics)

		total := am.Invocations.Load()
		avgMs := float64(0)
		if total > 0 {
			avgMs = float64(am.TotalMs.Load()) / float64(total)
		}

		minMs := am.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}

		result[name] = map[string]interface{}{
			"invocations": total,
			"completed":   am.Completed.Load(),
			"cancelled":   am.Cancelled.Load(),
			"errored":     am.Errored.Load(),
			"avg_ms":      avgMs,
			"min_ms":      minMs,
			"max_ms":      am.MaxMs.Load(),
		}
		return true
	})

	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["actions"] = m.ActionStats()
		json.NewEncoder(w).Encode(result)
	})
}

// TimeSeries returns minute-level time-series data for the last 24 hours.
func (m *Metrics) TimeSeries() []map[string]interface{} {
	m.timeSeriesMu.RLock()
	defer m.timeSeriesMu.RUnlock()

	result := make([]map[string]interface{}, len(m.timeSeries))
	for i, bucket := range m.timeSeries {
		avgDuration := float64(0)
		if bucket.Count > 0 {
			avgDuration = float64(bucket.TotalLatency) / float64(bucket.Count)
		}
		result[i] = map[string]interface{}{
			"timestamp":    bucket.Timestamp.Format(time.RFC3339),
			"invocations":  bucket.Invocations,
			"errors":       bucket.Errors,
			"avg_duration": avgDuration,
		}
	}
	return result
}

// TimeSeriesHandler returns an HTTP handler for time-series metrics.
func (m *Metrics) TimeSeriesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.TimeSeries())
	})
}

// Helper functions

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
