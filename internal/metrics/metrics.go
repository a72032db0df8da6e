// Package metrics exposes the controller's Prometheus instruments.  A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	decisions       *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	busDropped      *prometheus.CounterVec
	feedbackDropped prometheus.Counter
	pinCompletions  *prometheus.CounterVec
	pluginsLoaded   prometheus.Gauge
}

// New registers every instrument with reg.  Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portunus_decisions_total",
			Help: "Access decisions by event kind and outcome.",
		}, []string{"kind", "outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portunus_stage_failures_total",
			Help: "Orchestration stages that failed, by event kind and stage.",
		}, []string{"kind", "stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portunus_stage_duration_seconds",
			Help:    "Time spent in each orchestration stage.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind", "stage"}),
		busDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portunus_bus_dropped_total",
			Help: "Events dropped because a subscriber buffer was full.",
		}, []string{"topic"}),
		feedbackDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portunus_feedback_dropped_total",
			Help: "Feedback messages rejected because a reader queue was full.",
		}),
		pinCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portunus_pin_completions_total",
			Help: "Completed PIN collections by completion reason.",
		}, []string{"reason"}),
		pluginsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portunus_plugins_loaded",
			Help: "Plugin instances currently loaded.",
		}),
	}

	reg.MustRegister(
		m.decisions, m.stageFailures, m.stageDuration,
		m.busDropped, m.feedbackDropped, m.pinCompletions, m.pluginsLoaded,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDecision(kind string, success bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if success {
		outcome = "granted"
	}
	m.decisions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveStage(kind, stage string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(kind, stage).Observe(d.Seconds())
	if failed {
		m.stageFailures.WithLabelValues(kind, stage).Inc()
	}
}

func (m *Metrics) EventDropped(topic string) {
	if m == nil {
		return
	}
	m.busDropped.WithLabelValues(topic).Inc()
}

func (m *Metrics) FeedbackDropped() {
	if m == nil {
		return
	}
	m.feedbackDropped.Inc()
}

func (m *Metrics) PinCompleted(reason string) {
	if m == nil {
		return
	}
	m.pinCompletions.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetPluginsLoaded(n int) {
	if m == nil {
		return
	}
	m.pluginsLoaded.Set(float64(n))
}
