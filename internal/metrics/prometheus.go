package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for LabThings server metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	invocationsTotal     *prometheus.CounterVec
	propertyWritesTotal  *prometheus.CounterVec
	propertyReadsTotal   *prometheus.CounterVec
	observationMsgsTotal *prometheus.CounterVec
	settingsSavesTotal   *prometheus.CounterVec
	settingsSaveErrors   *prometheus.CounterVec

	// Histograms
	invocationDuration *prometheus.HistogramVec
	tdBuildDuration    *prometheus.HistogramVec

	// Gauges
	uptime             prometheus.GaugeFunc
	activeInvocations  *prometheus.GaugeVec
	observationClients *prometheus.GaugeVec
	thingsRegistered   prometheus.Gauge
}

// Default histogram buckets for invocation duration (in milliseconds).
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of action invocations by thing, action and terminal status",
			},
			[]string{"thing", "action", "status"},
		),

		propertyWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "property_writes_total",
				Help:      "Total number of property write requests by thing, property and result",
			},
			[]string{"thing", "property", "result"},
		),

		propertyReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "property_reads_total",
				Help:      "Total number of property read requests by thing and property",
			},
			[]string{"thing", "property"},
		),

		observationMsgsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observation_messages_total",
				Help:      "Total number of messages published on the observation bus by thing and affordance kind",
			},
			[]string{"thing", "kind"},
		),

		settingsSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settings_saves_total",
				Help:      "Total number of settings persistence writes by thing",
			},
			[]string{"thing"},
		),

		settingsSaveErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settings_save_errors_total",
				Help:      "Total number of settings persistence write failures by thing",
			},
			[]string{"thing"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Duration of action invocations in milliseconds, from RUNNING to a terminal status",
				Buckets:   buckets,
			},
			[]string{"thing", "action", "status"},
		),

		tdBuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "td_build_duration_milliseconds",
				Help:      "Duration of Thing Description document builds (cache misses only) in milliseconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
			},
			[]string{"thing"},
		),

		activeInvocations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_invocations",
				Help:      "Number of invocations currently in pending or running state, by thing and action",
			},
			[]string{"thing", "action"},
		),

		observationClients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "observation_subscribers",
				Help:      "Number of currently connected observation WebSocket subscribers, by thing",
			},
			[]string{"thing"},
		),

		thingsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "things_registered",
				Help:      "Number of Things currently registered with the server",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the LabThings server started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.invocationsTotal,
		pm.propertyWritesTotal,
		pm.propertyReadsTotal,
		pm.observationMsgsTotal,
		pm.settingsSavesTotal,
		pm.settingsSaveErrors,
		pm.invocationDuration,
		pm.tdBuildDuration,
		pm.uptime,
		pm.activeInvocations,
		pm.observationClients,
		pm.thingsRegistered,
	)

	promMetrics = pm
}

// RecordInvocation records a terminal invocation outcome and its duration.
func RecordInvocation(thing, action, status string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.invocationsTotal.WithLabelValues(thing, action, status).Inc()
	promMetrics.invocationDuration.WithLabelValues(thing, action, status).Observe(float64(durationMs))
}

// RecordPropertyWrite records a property write attempt and its result
// ("ok", "validation_failed", "not_allowed", "error").
func RecordPropertyWrite(thing, property, result string) {
	if promMetrics == nil {
		return
	}
	promMetrics.propertyWritesTotal.WithLabelValues(thing, property, result).Inc()
}

// RecordPropertyRead records a property read.
func RecordPropertyRead(thing, property string) {
	if promMetrics == nil {
		return
	}
	promMetrics.propertyReadsTotal.WithLabelValues(thing, property).Inc()
}

// RecordObservationMessage records a message published on the observation
// bus. kind is "property", "action" or "event".
func RecordObservationMessage(thing, kind string) {
	if promMetrics == nil {
		return
	}
	promMetrics.observationMsgsTotal.WithLabelValues(thing, kind).Inc()
}

// RecordSettingsSave records a settings persistence write, successful or not.
func RecordSettingsSave(thing string, err error) {
	if promMetrics == nil {
		return
	}
	promMetrics.settingsSavesTotal.WithLabelValues(thing).Inc()
	if err != nil {
		promMetrics.settingsSaveErrors.WithLabelValues(thing).Inc()
	}
}

// RecordTDBuildDuration records the time spent building a Thing Description
// document on a cache miss.
func RecordTDBuildDuration(thing string, durationMs float64) {
	if promMetrics == nil {
		return
	}
	promMetrics.tdBuildDuration.WithLabelValues(thing).Observe(durationMs)
}

// SetActiveInvocations sets the current in-flight invocation count for an action.
func SetActiveInvocations(thing, action string, count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeInvocations.WithLabelValues(thing, action).Set(float64(count))
}

// SetObservationSubscribers sets the current WebSocket subscriber count for a thing.
func SetObservationSubscribers(thing string, count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.observationClients.WithLabelValues(thing).Set(float64(count))
}

// SetThingsRegistered sets the number of Things currently registered.
func SetThingsRegistered(count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.thingsRegistered.Set(float64(count))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors).
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
