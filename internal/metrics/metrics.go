// Package metrics exposes verdict and reload counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/safezone/internal/dispatch"
)

// Metrics holds the collectors for one registry. It implements
// dispatch.Hook and dispatch.ReloadObserver.
//
// Usage:
//
//	m := metrics.New()
//	d, _ := dispatch.New(store, dispatch.WithHook(m), dispatch.WithReloadObserver(m))
//	http.Handle("/metrics", m.Handler())
type Metrics struct {
	registry *prometheus.Registry

	// Verdicts counts evaluated actions.
	// Labels: kind (path|command), decision (allow|deny), reason
	Verdicts *prometheus.CounterVec

	// Reloads counts policy reload attempts.
	// Labels: result (success|error)
	Reloads *prometheus.CounterVec

	// EvaluationDuration measures resolver latency in seconds.
	// Labels: kind
	EvaluationDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safezone_verdicts_total",
				Help: "Total number of authorization verdicts by action kind, decision and reason",
			},
			[]string{"kind", "decision", "reason"},
		),

		Reloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safezone_policy_reloads_total",
				Help: "Total number of policy reload attempts by result",
			},
			[]string{"result"},
		),

		EvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "safezone_evaluation_seconds",
				Help:    "Duration of verdict evaluation in seconds",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"kind"},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OnVerdict implements dispatch.Hook.
func (m *Metrics) OnVerdict(e dispatch.Event) {
	kind := string(e.Verdict.Kind)
	if kind == "" {
		kind = "unknown"
	}
	reason := string(e.Verdict.Reason)
	if reason == "" {
		reason = "none"
	}
	m.Verdicts.WithLabelValues(kind, string(e.Verdict.Decision), reason).Inc()
	m.EvaluationDuration.WithLabelValues(kind).Observe(e.Duration.Seconds())
}

// OnReload implements dispatch.ReloadObserver.
func (m *Metrics) OnReload(_ string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.Reloads.WithLabelValues(result).Inc()
}
