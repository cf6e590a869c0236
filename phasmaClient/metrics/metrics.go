// Package metrics exposes Prometheus instrumentation for the payment core.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
)

const namespace = "phasma"

// Metrics groups the collectors recorded by the payment core.
type Metrics struct {
	ghostSessions  *prometheus.CounterVec
	pollTicks      *prometheus.CounterVec
	claims         *prometheus.CounterVec
	sweptRaw       prometheus.Counter
	payments       *prometheus.CounterVec
	gatewayLatency *prometheus.HistogramVec
	backgroundJobs *prometheus.CounterVec
}

var (
	registryOnce sync.Once
	registry     *Metrics
)

// Registry returns the lazily-initialised metrics registry.
func Registry() *Metrics {
	registryOnce.Do(func() {
		registry = &Metrics{
			ghostSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ghost",
				Name:      "sessions_total",
				Help:      "Ghost receive sessions segmented by how they ended.",
			}, []string{"outcome"}),
			pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ghost",
				Name:      "poll_ticks_total",
				Help:      "Balance polls of ephemeral addresses segmented by result.",
			}, []string{"result"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ghost",
				Name:      "claims_total",
				Help:      "Sweep claims segmented by kind (single, batch) and outcome.",
			}, []string{"kind", "outcome"}),
			sweptRaw: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ghost",
				Name:      "swept_raw_amount_total",
				Help:      "Smallest token units swept from ephemeral addresses.",
			}),
			payments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "payments_total",
				Help:      "Direct payments segmented by strategy and outcome.",
			}, []string{"strategy", "outcome"}),
			gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Ledger gateway request latency by operation.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "outcome"}),
			backgroundJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "jobs_total",
				Help:      "Background cleanup jobs segmented by name and outcome.",
			}, []string{"job", "outcome"}),
		}
		prometheus.MustRegister(
			registry.ghostSessions,
			registry.pollTicks,
			registry.claims,
			registry.sweptRaw,
			registry.payments,
			registry.gatewayLatency,
			registry.backgroundJobs,
		)
	})
	return registry
}

// Handler serves the default Prometheus registry with the core collectors registered.
func Handler() http.Handler {
	Registry()
	return promhttp.Handler()
}

// GhostSession records a ghost session milestone (started, publish_failed,
// received, timeout, claimed, reset).
func (m *Metrics) GhostSession(outcome string) {
	if m == nil {
		return
	}
	m.ghostSessions.WithLabelValues(outcome).Inc()
}

// PollTick records a single balance poll (funded, empty, not_found, error, timeout).
func (m *Metrics) PollTick(result string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(result).Inc()
}

// Claim records a sweep attempt and, on success, the swept amount.
func (m *Metrics) Claim(kind string, err error, sweptRaw uint64) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(kind, outcome(err)).Inc()
	if err == nil {
		m.sweptRaw.Add(float64(sweptRaw))
	}
}

// Payment records a direct payment outcome.
func (m *Metrics) Payment(strategy string, err error) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(strategy, outcome(err)).Inc()
}

// GatewayRequest records the latency of a ledger call.
func (m *Metrics) GatewayRequest(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(operation, outcome(err)).Observe(duration.Seconds())
}

// BackgroundJob records a fire-and-forget job outcome.
func (m *Metrics) BackgroundJob(job string, err error) {
	if m == nil {
		return
	}
	m.backgroundJobs.WithLabelValues(job, outcome(err)).Inc()
}

// outcome labels a result by its payment error code.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(perrors.CodeOf(err)))
}
