// Package metrics provides Prometheus metrics for the sentinel trust engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// trustBuckets spans the full trust range so the final-score distribution is readable.
var trustBuckets = []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100} //nolint:gochecknoglobals // static bucket layout

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Authentication
	tokensIssued   prometheus.Counter
	tokensVerified prometheus.Counter
	tokensRejected *prometheus.CounterVec
	replayEntries  prometheus.Gauge

	// Sessions and trust
	sessionsActive    prometheus.Gauge
	sessionFinalTrust prometheus.Histogram
	detections        *prometheus.CounterVec
	escalations       *prometheus.CounterVec

	// State history
	snapshotsCaptured prometheus.Counter
	snapshotsSkipped  prometheus.Counter
	findings          *prometheus.CounterVec
	checkCycleLatency prometheus.Histogram
	raycasts          *prometheus.CounterVec

	// Network activity
	eventsTracked   prometheus.Counter
	eventsBlocked   *prometheus.CounterVec
	patternMatches  *prometheus.CounterVec
	windowsRotated  prometheus.Counter
	schedulerDrops  *prometheus.CounterVec
	schedulerQueued prometheus.Gauge

	// Collaborators
	collaboratorFailures *prometheus.CounterVec
	circuitBreakerState  *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Dispatch queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueUtilization        prometheus.Gauge
	queueEnqueueRate        prometheus.Counter
	queueDequeueRate        prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

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
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sentinel",
		subsystem:        "trust",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		Buckets: buckets, ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics on the configured registry.
func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	m.tokensIssued = m.counter("tokens_issued_total", "Total number of security tokens issued")
	m.tokensVerified = m.counter("tokens_verified_total", "Total number of tokens accepted by verification")
	m.tokensRejected = m.counterVec("tokens_rejected_total", "Total number of tokens rejected, by reason", "reason")
	m.replayEntries = m.gauge("replay_cache_entries", "Signatures currently held by the anti-replay cache")

	m.sessionsActive = m.gauge("sessions_active", "Number of connected player sessions")
	m.sessionFinalTrust = m.histogram("session_final_trust", "Trust score of sessions at disconnect", trustBuckets)
	m.detections = m.counterVec("detections_total", "Detections processed, by type and outcome",
		"type", "validated", "client_reported")
	m.escalations = m.counterVec("escalations_total", "Enforcement actions taken, by action", "action")

	m.snapshotsCaptured = m.counter("snapshots_captured_total", "State snapshots captured from the game-state boundary")
	m.snapshotsSkipped = m.counter("snapshots_skipped_total", "Captures skipped because the entity was unavailable")
	m.findings = m.counterVec("findings_total", "Classifier findings, by detection type", "type")
	m.checkCycleLatency = m.histogram("check_cycle_duration_milliseconds", "Duration of one state check cycle in milliseconds",
		m.histogramBuckets)
	m.raycasts = m.counterVec("raycasts_total", "Raycast re-validations, by outcome", "outcome")

	m.eventsTracked = m.counter("events_tracked_total", "Network events tracked")
	m.eventsBlocked = m.counterVec("events_blocked_total", "Network events refused, by reason", "reason")
	m.patternMatches = m.counterVec("pattern_matches_total", "Suspicious event sequences flagged, by pattern", "pattern")
	m.windowsRotated = m.counter("windows_rotated_total", "Per-player event windows rotated")
	m.schedulerDrops = m.counterVec("scheduler_dropped_total", "Scheduled runs dropped because the loop was saturated", "task")
	m.schedulerQueued = m.gauge("scheduler_queued", "Tasks waiting for the scheduler loop")

	m.collaboratorFailures = m.counterVec("collaborator_failures_total", "Failed collaborator calls, by collaborator",
		"collaborator")
	m.circuitBreakerState = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("circuit_breaker_state"),
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)", ConstLabels: m.customLabels,
	}, []string{"name"})

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_milliseconds"),
		Help: "HTTP request duration in milliseconds", Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = m.gauge("queue_size", "Current size of the dispatch queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the dispatch queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Dispatch queue utilization ratio (0-1)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of jobs refused by a full queue")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Dispatch worker latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of failed dispatch jobs")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint",
		"endpoint", "method", "error_type")
	m.errorLatency = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("error_latency_milliseconds"),
		Help: "Latency of operations that resulted in errors", Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// RecordTokenIssued increments the issued tokens counter.
func RecordTokenIssued() { globalManager.tokensIssued.Inc() }

// RecordTokenVerified increments the accepted tokens counter.
func RecordTokenVerified() { globalManager.tokensVerified.Inc() }

// RecordTokenRejected increments the rejected tokens counter for reason.
func RecordTokenRejected(reason string) { globalManager.tokensRejected.WithLabelValues(reason).Inc() }

// UpdateReplayCacheSize sets the number of signatures in the anti-replay cache.
func UpdateReplayCacheSize(n int) { globalManager.replayEntries.Set(float64(n)) }

// UpdateActiveSessions sets the connected sessions gauge.
func UpdateActiveSessions(n int) { globalManager.sessionsActive.Set(float64(n)) }

// RecordSessionFinalTrust observes a session's trust score at disconnect.
func RecordSessionFinalTrust(score float64) { globalManager.sessionFinalTrust.Observe(score) }

// RecordDetection counts a processed detection.
func RecordDetection(detectionType string, validated, clientReported bool) {
	globalManager.detections.WithLabelValues(detectionType, boolLabel(validated), boolLabel(clientReported)).Inc()
}

// RecordEscalation counts an enforcement action (warn, kick, ban).
func RecordEscalation(action string) { globalManager.escalations.WithLabelValues(action).Inc() }

// RecordSnapshotCaptured increments the captured snapshots counter.
func RecordSnapshotCaptured() { globalManager.snapshotsCaptured.Inc() }

// RecordSnapshotSkipped increments the skipped captures counter.
func RecordSnapshotSkipped() { globalManager.snapshotsSkipped.Inc() }

// RecordFinding counts a classifier finding.
func RecordFinding(detectionType string) { globalManager.findings.WithLabelValues(detectionType).Inc() }

// RecordCheckCycleLatency records the duration of a state check cycle.
func RecordCheckCycleLatency(latencyMs float64) { globalManager.checkCycleLatency.Observe(latencyMs) }

// RecordRaycast counts a raycast outcome (blocked, clear, timeout, error).
func RecordRaycast(outcome string) { globalManager.raycasts.WithLabelValues(outcome).Inc() }

// RecordEventTracked increments the tracked events counter.
func RecordEventTracked() { globalManager.eventsTracked.Inc() }

// RecordEventBlocked counts a refused network event.
func RecordEventBlocked(reason string) { globalManager.eventsBlocked.WithLabelValues(reason).Inc() }

// RecordPatternMatch counts a flagged event sequence.
func RecordPatternMatch(pattern string) { globalManager.patternMatches.WithLabelValues(pattern).Inc() }

// RecordWindowRotated increments the rotated windows counter.
func RecordWindowRotated() { globalManager.windowsRotated.Inc() }

// RecordSchedulerDrop counts a periodic run dropped by a saturated loop.
func RecordSchedulerDrop(task string) { globalManager.schedulerDrops.WithLabelValues(task).Inc() }

// UpdateSchedulerQueued sets the number of tasks waiting for the loop.
func UpdateSchedulerQueued(n int) { globalManager.schedulerQueued.Set(float64(n)) }

// RecordCollaboratorFailure counts a failed call to an external collaborator.
func RecordCollaboratorFailure(collaborator string) {
	globalManager.collaboratorFailures.WithLabelValues(collaborator).Inc()
}

// UpdateCircuitBreakerState sets the state gauge of a named breaker.
func UpdateCircuitBreakerState(name string, state float64) {
	globalManager.circuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueRate.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueRate.Inc() }

// RecordQueueEnqueueError increments the enqueue errors counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordWorkerProcessingLatency records dispatch worker latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker errors counter.
func RecordWorkerError() { globalManager.workerErrorRate.Inc() }

// RecordErrorByComponent records an error by component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that failed.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records an average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry the global manager registers on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
