// Package metrics exports path attempt and conflict detector state to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/proxy"
)

const namespace = "videoproc"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	attempts    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	bytes       *prometheus.CounterVec
	conflict    prometheus.Gauge
	conflictAge prometheus.Gauge
	probes      *prometheus.CounterVec
}

// New registers all collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_attempts_total",
			Help:      "Network path attempts by operation, endpoint kind, provider and result.",
		}, []string{"operation", "kind", "provider", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "path_attempt_duration_seconds",
			Help:      "Duration of network path attempts.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 600},
		}, []string{"operation", "kind"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_bytes_total",
			Help:      "Bytes produced by successful attempts.",
		}, []string{"kind", "provider"}),
		conflict: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxy_conflict_detected",
			Help:      "1 when the last conflict probe flagged the residential provider.",
		}),
		conflictAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxy_conflict_checked_timestamp_seconds",
			Help:      "Unix time of the last conflict probe.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_conflict_probes_total",
			Help:      "Conflict probes by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.attempts, m.duration, m.bytes, m.conflict, m.conflictAge, m.probes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAttempt implements proxy.AttemptObserver.
func (m *Metrics) ObserveAttempt(_ context.Context, ev proxy.AttemptEvent) {
	result := "success"
	if !ev.Success {
		result = string(ev.Class)
	}
	kind := string(ev.Attempt.Kind)
	m.attempts.WithLabelValues(ev.Operation, kind, ev.Attempt.Provider, result).Inc()
	m.duration.WithLabelValues(ev.Operation, kind).Observe(ev.Duration.Seconds())
	if ev.Success && ev.Bytes > 0 {
		m.bytes.WithLabelValues(kind, ev.Attempt.Provider).Add(float64(ev.Bytes))
	}
}

// ObserveConflict is passed to conflict.WithObserver.
func (m *Metrics) ObserveConflict(s conflict.State) {
	if s.Detected {
		m.conflict.Set(1)
	} else {
		m.conflict.Set(0)
	}
	if !s.LastCheckedAt.IsZero() {
		m.conflictAge.Set(float64(s.LastCheckedAt.Unix()))
	}
	reason := string(s.Reason)
	if reason == "" {
		reason = "pending"
	}
	m.probes.WithLabelValues(reason).Inc()
}
