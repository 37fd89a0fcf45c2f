// Package metrics provides Prometheus metrics for the placement service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace         string
	subsystem         string
	latencyBuckets    []float64
	allocationBuckets []float64
	nodeBuckets       []float64
	registry          prometheus.Registerer

	// Allocation
	allocations        *prometheus.CounterVec
	allocationDuration *prometheus.HistogramVec
	solverNodes        prometheus.Histogram
	placements         prometheus.Counter
	quotaFulfillment   *prometheus.GaugeVec
	idempotentReplays  prometheus.Counter

	// Scoring
	scoringRequests prometheus.Counter
	scoringLatency  prometheus.Histogram

	// Dataset
	datasetCandidates    prometheus.Gauge
	datasetOpportunities prometheus.Gauge
	datasetCapacity      prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	repositoryRuns         prometheus.Gauge
	repositoryQueryLatency prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActive            prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:         "placement",
		subsystem:         "engine",
		latencyBuckets:    prometheus.DefBuckets,
		allocationBuckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		nodeBuckets:       prometheus.ExponentialBuckets(1, 4, 10),
		registry:          prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.allocations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "allocations_total",
		Help:      "Allocation runs by strategy and final status",
	}, []string{"strategy", "status"})

	m.allocationDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "allocation_duration_milliseconds",
		Help:      "Wall time of allocation runs in milliseconds",
		Buckets:   m.allocationBuckets,
	}, []string{"strategy"})

	m.solverNodes = m.histogram("solver_nodes", "Branch-and-bound nodes explored per optimal run",
		m.nodeBuckets)
	m.placements = m.counter("placements_total", "Candidates placed across all runs")

	m.quotaFulfillment = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "quota_fulfillment_percent",
		Help:      "Share of placements held by each quota key in the last completed run",
	}, []string{"key"})

	m.idempotentReplays = m.counter("idempotent_replays_total", "Run submissions answered from an earlier submission")

	m.scoringRequests = m.counter("scoring_requests_total", "Single-pair scoring requests")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Score matrix build latency in milliseconds", m.latencyBuckets)

	m.datasetCandidates = m.gauge("dataset_candidates", "Candidates in the loaded dataset")
	m.datasetOpportunities = m.gauge("dataset_opportunities", "Opportunities in the loaded dataset")
	m.datasetCapacity = m.gauge("dataset_total_capacity", "Seats across all opportunities in the loaded dataset")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.repositoryRuns = m.gauge("repository_runs", "Allocation runs held by the repository")
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds",
		"Repository operation latency in milliseconds", m.latencyBuckets)

	m.queueSize = m.gauge("queue_size", "Jobs waiting in the run queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum run queue capacity")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs rejected by the queue")

	m.workerActive = m.gauge("worker_active_count", "Workers currently executing a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Job execution latency in milliseconds", m.latencyBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Jobs that ended in an error")

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Total number of errors by component",
	}, []string{"component", "error_type"})
}

// RecordAllocation records a finished allocation run.
func RecordAllocation(strategy, status string, durationMs float64, placed int) {
	globalManager.allocations.WithLabelValues(strategy, status).Inc()
	globalManager.allocationDuration.WithLabelValues(strategy).Observe(durationMs)
	globalManager.placements.Add(float64(placed))
}

// RecordSolverNodes records how many nodes an optimal run explored.
func RecordSolverNodes(nodes int) {
	globalManager.solverNodes.Observe(float64(nodes))
}

// UpdateQuotaFulfillment sets the fulfillment percentage for a quota key.
func UpdateQuotaFulfillment(key string, percent float64) {
	globalManager.quotaFulfillment.WithLabelValues(key).Set(percent)
}

// RecordIdempotentReplay counts a submission answered from an earlier one.
func RecordIdempotentReplay() {
	globalManager.idempotentReplays.Inc()
}

// RecordScoringRequest counts a single-pair scoring request.
func RecordScoringRequest() {
	globalManager.scoringRequests.Inc()
}

// RecordScoringLatency records score matrix build latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// UpdateDataset sets the dataset size gauges.
func UpdateDataset(candidates, opportunities, capacity int) {
	globalManager.datasetCandidates.Set(float64(candidates))
	globalManager.datasetOpportunities.Set(float64(opportunities))
	globalManager.datasetCapacity.Set(float64(capacity))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateRepositoryRuns sets the number of stored runs.
func UpdateRepositoryRuns(count int) {
	globalManager.repositoryRuns.Set(float64(count))
}

// RecordRepositoryQueryLatency records repository operation latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerProcessingLatency records job execution latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
