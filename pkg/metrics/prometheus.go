// Package metrics provides Prometheus metrics for the helpquest service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds every Prometheus metric of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Progression
	experienceGranted    prometheus.Counter
	levelUps             prometheus.Counter
	achievementsUnlocked *prometheus.CounterVec
	gameEvents           *prometheus.CounterVec
	duplicateEvents      prometheus.Counter
	pendingNotifications prometheus.Gauge
	activeSessions       prometheus.Gauge

	// Sync
	syncAttempts   *prometheus.CounterVec
	syncLatency    prometheus.Histogram
	syncSuperseded prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueCoalesced     prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec
	queueWait          prometheus.Histogram

	// Workers
	workerActiveCount       prometheus.Gauge
	workerThroughput        prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "helpquest",
		subsystem:        "progression",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.experienceGranted = auto.NewCounter(m.counter("experience_granted_total", "Total experience granted to players"))
	m.levelUps = auto.NewCounter(m.counter("level_ups_total", "Total levels gained"))
	m.achievementsUnlocked = auto.NewCounterVec(m.counter("achievements_unlocked_total", "Achievements unlocked by rarity"), []string{"rarity"})
	m.gameEvents = auto.NewCounterVec(m.counter("game_events_total", "Game events recorded by type"), []string{"type"})
	m.duplicateEvents = auto.NewCounter(m.counter("game_events_duplicate_total", "Game events dropped as duplicates"))
	m.pendingNotifications = auto.NewGauge(m.gauge("pending_notifications", "Notifications waiting behind the open one"))
	m.activeSessions = auto.NewGauge(m.gauge("active_sessions", "Open player sessions"))

	m.syncAttempts = auto.NewCounterVec(m.counter("sync_attempts_total", "Remote sync attempts by result"), []string{"result"})
	m.syncLatency = auto.NewHistogram(m.histogram("sync_latency_milliseconds", "Remote exchange latency in milliseconds", m.histogramBuckets))
	m.syncSuperseded = auto.NewCounter(m.counter("sync_superseded_total", "Sync results discarded because a newer sync was applied"))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.queueSize = auto.NewGauge(m.gauge("sync_queue_size", "Sync requests waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gauge("sync_queue_capacity", "Capacity of the sync queue"))
	m.queueEnqueued = auto.NewCounter(m.counter("sync_queue_enqueued_total", "Sync requests enqueued"))
	m.queueDequeued = auto.NewCounter(m.counter("sync_queue_dequeued_total", "Sync requests handed to workers"))
	m.queueCoalesced = auto.NewCounter(m.counter("sync_queue_coalesced_total", "Sync requests merged into a pending one"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counter("sync_queue_enqueue_errors_total", "Rejected sync requests by reason"), []string{"reason"})
	m.queueWait = auto.NewHistogram(m.histogram("sync_queue_wait_milliseconds", "Time a sync request waited in the queue", m.histogramBuckets))

	m.workerActiveCount = auto.NewGauge(m.gauge("worker_active_count", "Running sync workers"))
	m.workerThroughput = auto.NewGauge(m.gauge("worker_syncs_per_second", "Syncs handled per second"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("worker_processing_latency_milliseconds", "Time a worker spent on one sync", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counter("worker_errors_total", "Background syncs that failed"))

	m.errorRateByComponent = auto.NewCounterVec(m.counter("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counter("errors_by_type_total", "Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counter("errors_by_endpoint_total", "Errors by endpoint, method and type"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogram("error_latency_milliseconds", "Latency of failed operations", m.histogramBuckets), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_usage_bytes", "Heap memory in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Progression metrics.

// RecordExperienceGranted adds granted experience.
func RecordExperienceGranted(amount int) {
	if amount > 0 {
		globalManager.experienceGranted.Add(float64(amount))
	}
}

// RecordLevelUp counts one level gained.
func RecordLevelUp() { globalManager.levelUps.Inc() }

// RecordAchievementUnlocked counts one unlock.
func RecordAchievementUnlocked(rarity string) {
	globalManager.achievementsUnlocked.WithLabelValues(rarity).Inc()
}

// RecordGameEvent counts one recorded game event.
func RecordGameEvent(eventType string) { globalManager.gameEvents.WithLabelValues(eventType).Inc() }

// RecordDuplicateEvent counts one event dropped as a duplicate.
func RecordDuplicateEvent() { globalManager.duplicateEvents.Inc() }

// UpdatePendingNotifications sets the pending notification count.
func UpdatePendingNotifications(n int) { globalManager.pendingNotifications.Set(float64(n)) }

// UpdateActiveSessions sets the open session count.
func UpdateActiveSessions(n int) { globalManager.activeSessions.Set(float64(n)) }

// Sync metrics.

// RecordSyncAttempt counts a sync by result.
func RecordSyncAttempt(result string) { globalManager.syncAttempts.WithLabelValues(result).Inc() }

// ObserveSyncLatency records the duration of one exchange.
func ObserveSyncLatency(d time.Duration) { globalManager.syncLatency.Observe(ms(d)) }

// RecordSyncSuperseded counts a discarded sync result.
func RecordSyncSuperseded() { globalManager.syncSuperseded.Inc() }

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueCoalesced counts a request merged into a pending one.
func RecordQueueCoalesced() { globalManager.queueCoalesced.Inc() }

// RecordQueueEnqueueError counts a rejected request.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordQueueWait records how long a request waited.
func RecordQueueWait(d time.Duration) { globalManager.queueWait.Observe(ms(d)) }

// Worker metrics.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// UpdateWorkerThroughput sets the syncs handled per second.
func UpdateWorkerThroughput(rate float64) { globalManager.workerThroughput.Set(rate) }

// RecordWorkerProcessingLatency records the time spent on one request.
func RecordWorkerProcessingLatency(d time.Duration) {
	globalManager.workerProcessingLatency.Observe(ms(d))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System metrics.

// UpdateSystemMemoryUsage sets the memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// CollectSystem samples memory, goroutines and the latest GC pause every
// interval until ctx is done.
func CollectSystem(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastGC uint32
	for {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		UpdateSystemMemoryUsage(mem.HeapInuse)
		UpdateSystemGoroutineCount(runtime.NumGoroutine())
		if mem.NumGC != lastGC && mem.NumGC > 0 {
			RecordSystemGCPauseTime(float64(mem.PauseNs[(mem.NumGC+255)%256]) / float64(time.Millisecond))
			lastGC = mem.NumGC
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
