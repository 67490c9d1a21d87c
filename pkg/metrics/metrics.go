package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka and outbox
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec
	OutboxPending        prometheus.Gauge
	OutboxPublished      *prometheus.CounterVec
	OutboxRetries        *prometheus.CounterVec

	// MongoDB
	MongoDBOperations        *prometheus.CounterVec
	MongoDBOperationDuration *prometheus.HistogramVec

	// Temporal
	WorkflowsDispatched *prometheus.CounterVec
	ActivitiesCompleted *prometheus.CounterVec
	ActivityDuration    *prometheus.HistogramVec

	// QR pipeline
	CodesAdvanced        *prometheus.CounterVec
	CodesInserted        *prometheus.CounterVec
	ChunkFailures        *prometheus.CounterVec
	BatchTransitions     *prometheus.CounterVec
	PrintFallbacks       prometheus.Counter
	ReverseJobs          *prometheus.CounterVec
	LeasesReclaimed      *prometheus.CounterVec
	ExportRenderDuration prometheus.Histogram

	// Circuit breakers
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
	}
}

func counterVec(ns, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: name, Help: help}, append([]string{"service"}, labels...))
}

func histogramVec(ns, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: name, Help: help, Buckets: buckets}, append([]string{"service"}, labels...))
}

// New creates a new Metrics instance on its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	ns := config.Namespace
	serviceLabel := prometheus.Labels{"service": config.ServiceName}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,

		HTTPRequestsTotal:   counterVec(ns, "http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
		HTTPRequestDuration: histogramVec(ns, "http_request_duration_seconds", "HTTP request duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}, "method", "path"),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "http_requests_in_flight", Help: "Number of HTTP requests currently being processed", ConstLabels: serviceLabel,
		}),

		KafkaEventsPublished: counterVec(ns, "kafka_events_published_total", "Total number of Kafka events published", "topic", "event_type", "status"),
		KafkaPublishDuration: histogramVec(ns, "kafka_publish_duration_seconds", "Kafka publish duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}, "topic"),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "outbox_pending_events", Help: "Unpublished outbox events seen by the last poll", ConstLabels: serviceLabel,
		}),
		OutboxPublished: counterVec(ns, "outbox_events_published_total", "Outbox events published", "event_type", "status"),
		OutboxRetries:   counterVec(ns, "outbox_retries_total", "Outbox publish retries", "event_type"),

		MongoDBOperations:        counterVec(ns, "mongodb_operations_total", "Total number of MongoDB operations", "collection", "operation", "status"),
		MongoDBOperationDuration: histogramVec(ns, "mongodb_operation_duration_seconds", "MongoDB operation duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}, "collection", "operation"),

		WorkflowsDispatched: counterVec(ns, "temporal_workflows_dispatched_total", "Workflows started or joined by the dispatcher", "workflow_type", "status"),
		ActivitiesCompleted: counterVec(ns, "temporal_activities_completed_total", "Total number of Temporal activities completed", "activity_type", "status"),
		ActivityDuration:    histogramVec(ns, "temporal_activity_duration_seconds", "Temporal activity duration in seconds", []float64{.1, .5, 1, 5, 10, 30, 60, 300}, "activity_type"),

		CodesAdvanced:    counterVec(ns, "qr_codes_advanced_total", "QR code rows moved to a later pipeline status", "kind", "from", "to"),
		CodesInserted:    counterVec(ns, "qr_codes_inserted_total", "QR code rows inserted during generation", "kind"),
		ChunkFailures:    counterVec(ns, "qr_chunk_failures_total", "Bulk update chunks that failed", "operation"),
		BatchTransitions: counterVec(ns, "qr_batches_transitioned_total", "Batch status transitions", "to"),
		PrintFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "qr_print_transition_fallbacks_total", Help: "Print transitions that fell back to sequential updates", ConstLabels: serviceLabel,
		}),
		ReverseJobs:     counterVec(ns, "qr_reverse_jobs_total", "Reverse jobs reaching a status", "status"),
		LeasesReclaimed: counterVec(ns, "qr_leases_reclaimed_total", "Stalled work re-dispatched by the lease monitor", "kind"),
		ExportRenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "qr_export_render_duration_seconds", Help: "Time spent rendering batch export files", ConstLabels: serviceLabel,
			Buckets: []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"service", "name"}),
		CircuitBreakerTrips: counterVec(ns, "circuit_breaker_trips_total", "Total number of circuit breaker trips", "name"),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.KafkaEventsPublished, m.KafkaPublishDuration,
		m.OutboxPending, m.OutboxPublished, m.OutboxRetries,
		m.MongoDBOperations, m.MongoDBOperationDuration,
		m.WorkflowsDispatched, m.ActivitiesCompleted, m.ActivityDuration,
		m.CodesAdvanced, m.CodesInserted, m.ChunkFailures, m.BatchTransitions,
		m.PrintFallbacks, m.ReverseJobs, m.LeasesReclaimed, m.ExportRenderDuration,
		m.CircuitBreakerState, m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// SetOutboxPending records the size of the last outbox poll
func (m *Metrics) SetOutboxPending(count int) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records an outbox publish attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, _ time.Duration) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(m.serviceName, eventType, statusLabel(success)).Inc()
}

// RecordOutboxRetry records an outbox retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	if m == nil {
		return
	}
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordMongoDBOperation records a MongoDB operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MongoDBOperations.WithLabelValues(m.serviceName, collection, operation, statusLabel(success)).Inc()
	m.MongoDBOperationDuration.WithLabelValues(m.serviceName, collection, operation).Observe(duration.Seconds())
}

// RecordWorkflowDispatched records a dispatcher start request
func (m *Metrics) RecordWorkflowDispatched(workflowType string, success bool) {
	if m == nil {
		return
	}
	m.WorkflowsDispatched.WithLabelValues(m.serviceName, workflowType, statusLabel(success)).Inc()
}

// RecordActivityCompleted records an activity completion
func (m *Metrics) RecordActivityCompleted(activityType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActivitiesCompleted.WithLabelValues(m.serviceName, activityType, statusLabel(success)).Inc()
	m.ActivityDuration.WithLabelValues(m.serviceName, activityType).Observe(duration.Seconds())
}

// RecordCodesAdvanced records rows moved between pipeline statuses
func (m *Metrics) RecordCodesAdvanced(kind, from, to string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.CodesAdvanced.WithLabelValues(m.serviceName, kind, from, to).Add(float64(count))
}

// RecordCodesInserted records rows inserted by generation
func (m *Metrics) RecordCodesInserted(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.CodesInserted.WithLabelValues(m.serviceName, kind).Add(float64(count))
}

// RecordChunkFailure records a failed bulk chunk
func (m *Metrics) RecordChunkFailure(operation string) {
	if m == nil {
		return
	}
	m.ChunkFailures.WithLabelValues(m.serviceName, operation).Inc()
}

// RecordBatchTransition records a batch status change
func (m *Metrics) RecordBatchTransition(to string) {
	if m == nil {
		return
	}
	m.BatchTransitions.WithLabelValues(m.serviceName, to).Inc()
}

// RecordPrintFallback records a print transition that left the transactional path
func (m *Metrics) RecordPrintFallback() {
	if m == nil {
		return
	}
	m.PrintFallbacks.Inc()
}

// RecordReverseJob records a reverse job status
func (m *Metrics) RecordReverseJob(status string) {
	if m == nil {
		return
	}
	m.ReverseJobs.WithLabelValues(m.serviceName, status).Inc()
}

// RecordLeaseReclaimed records stalled work handed back to the queue
func (m *Metrics) RecordLeaseReclaimed(kind string) {
	if m == nil {
		return
	}
	m.LeasesReclaimed.WithLabelValues(m.serviceName, kind).Inc()
}

// ObserveExportRender records how long an export took to render
func (m *Metrics) ObserveExportRender(duration time.Duration) {
	if m == nil {
		return
	}
	m.ExportRenderDuration.Observe(duration.Seconds())
}

// SetCircuitBreakerState records a breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a breaker opening
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	if m == nil {
		return
	}
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}
