package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "helpdesk_relay"

// UpstreamObserver receives one observation per outbound call.
type UpstreamObserver interface {
	ObserveUpstream(system, method string, status int, elapsed time.Duration)
}

// Metrics exposes prometheus counters for inbound webhooks, relays and outbound calls.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	relays        *prometheus.CounterVec
	relayDuration *prometheus.HistogramVec
	upstream      *prometheus.CounterVec
	upstreamTime  *prometheus.HistogramVec
}

// NewMetrics registers the relay collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Inbound HTTP requests that ended in an error, by error code",
		}, []string{"path", "method", "code"}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Relayed webhooks by route and outcome",
		}, []string{"route", "outcome"}),
		relayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent relaying a webhook, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Outbound calls by system, method and status (0 for transport failures)",
		}, []string{"system", "method", "status"}),
		upstreamTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Outbound call latency by system",
			Buckets:   prometheus.DefBuckets,
		}, []string{"system"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.errors, m.relays, m.relayDuration, m.upstream, m.upstreamTime,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordRelay counts one relay outcome.
func (m *Metrics) RecordRelay(route, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.relays.WithLabelValues(route, outcome).Inc()
	m.relayDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveUpstream implements UpstreamObserver.
func (m *Metrics) ObserveUpstream(system, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(system, method, strconv.Itoa(status)).Inc()
	m.upstreamTime.WithLabelValues(system).Observe(elapsed.Seconds())
}
