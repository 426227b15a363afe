package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ProviderCalls counts provider API calls by provider, operation, and outcome
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "provider_calls_total", Help: "Provider API calls by provider, op, and outcome."},
		[]string{"provider", "op", "outcome"},
	)
	// ProviderLatency tracks provider call latencies in milliseconds
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "provider_call_latency_ms", Help: "Provider call latency in ms.", Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000}},
		[]string{"provider", "op"},
	)
	// SyncOutcomes counts finished sync jobs by provider and result
	SyncOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sync_outcomes_total", Help: "Sync job results by provider."},
		[]string{"provider", "outcome"},
	)
	// QueueDepth reports jobs waiting/active per queue
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "job_queue_depth", Help: "Jobs per queue and state."},
		[]string{"queue", "state"},
	)
	// DeadLetters counts jobs that exhausted their retries
	DeadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "job_dead_letters_total", Help: "Dead-lettered jobs by type."},
		[]string{"job_type"},
	)
	// ReconcilerRuns counts status-reconciliation sweeps
	ReconcilerRuns = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reconciler_runs_total", Help: "Status reconciliation sweeps."},
	)
	// ReconcilerChecked counts orders polled during sweeps
	ReconcilerChecked = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reconciler_orders_checked_total", Help: "Orders polled for status."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ProviderCalls)
		Registry.MustRegister(ProviderLatency)
		Registry.MustRegister(SyncOutcomes)
		Registry.MustRegister(QueueDepth)
		Registry.MustRegister(DeadLetters)
		Registry.MustRegister(ReconcilerRuns)
		Registry.MustRegister(ReconcilerChecked)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
