package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the gateway.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts inbound requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records inbound request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookEvents counts inbound vendor webhook outcomes.
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pms_webhook_events_total", Help: "Inbound PMS webhook events by vendor and outcome."},
		[]string{"vendor", "outcome"},
	)
	// AdapterCalls counts outbound vendor API calls by operation and outcome.
	AdapterCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pms_adapter_calls_total", Help: "Outbound PMS adapter calls by vendor, operation, and outcome."},
		[]string{"vendor", "op", "outcome"},
	)
	// AdapterLatency tracks outbound call latencies in seconds.
	AdapterLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "pms_adapter_call_duration_seconds", Help: "Outbound PMS adapter call duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"vendor", "op"},
	)
	// RetryAttempts counts backoff retries of outbound vendor calls.
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pms_retry_attempts_total", Help: "Retried outbound PMS calls by vendor and operation."},
		[]string{"vendor", "op"},
	)
	// BusEvents counts events published on the internal bus by topic.
	BusEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pms_bus_events_total", Help: "Normalized events published by topic."},
		[]string{"topic"},
	)
	// DeadLetters counts webhook events recorded for later replay.
	DeadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pms_dead_letters_total", Help: "Webhook events dead-lettered by vendor and reason."},
		[]string{"vendor", "reason"},
	)
	// SyncRuns counts tenant sync outcomes.
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pms_sync_runs_total", Help: "Tenant sync runs by vendor and outcome."},
		[]string{"vendor", "outcome"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on the gateway registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WebhookEvents)
		Registry.MustRegister(AdapterCalls)
		Registry.MustRegister(AdapterLatency)
		Registry.MustRegister(RetryAttempts)
		Registry.MustRegister(BusEvents)
		Registry.MustRegister(DeadLetters)
		Registry.MustRegister(SyncRuns)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
