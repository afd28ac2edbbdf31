package rollout

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes run progress as Prometheus metrics on a private registry,
// for operators who scrape long-running upgrade windows. All recording
// methods are nil-safe so the orchestrator never has to branch on whether
// metrics were requested.
type Metrics struct {
	registry *prometheus.Registry

	nodesProcessed *prometheus.CounterVec
	pollAttempts   *prometheus.CounterVec
	runDuration    prometheus.Gauge
	runSucceeded   prometheus.Gauge
}

// NewMetrics creates and registers the rollout metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esroll_nodes_processed_total",
			Help: "Nodes processed during the run, by outcome.",
		}, []string{"outcome"}),
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "esroll_poll_attempts_total",
			Help: "Wait-loop polling attempts, by phase.",
		}, []string{"phase"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "esroll_run_duration_seconds",
			Help: "Wall-clock duration of the completed run.",
		}),
		runSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "esroll_run_succeeded",
			Help: "1 if the run completed successfully, 0 otherwise.",
		}),
	}

	m.registry.MustRegister(m.nodesProcessed, m.pollAttempts, m.runDuration, m.runSucceeded)
	return m
}

// Handler returns an HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) nodeProcessed(kind OutcomeKind) {
	if m == nil {
		return
	}
	m.nodesProcessed.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) pollAttempt(phase string) {
	if m == nil {
		return
	}
	m.pollAttempts.WithLabelValues(phase).Inc()
}

func (m *Metrics) runFinished(duration time.Duration, succeeded bool) {
	if m == nil {
		return
	}
	m.runDuration.Set(duration.Seconds())
	if succeeded {
		m.runSucceeded.Set(1)
	} else {
		m.runSucceeded.Set(0)
	}
}
