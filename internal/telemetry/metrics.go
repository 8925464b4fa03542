package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service. All series use
// the sna_ prefix and are served in text exposition format on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	EvaluationTotal   *prometheus.CounterVec
	EvaluationLatency prometheus.Histogram
	EASCurrent        prometheus.Gauge
	EscalationPending prometheus.Gauge
	ExecutionTotal    *prometheus.CounterVec
	ExecutionLatency  prometheus.Histogram
	NotificationTotal *prometheus.CounterVec
	ValidationTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		EvaluationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sna_evaluation_total",
			Help: "Evaluations by verdict and risk tier.",
		}, []string{"verdict", "tier"}),
		EvaluationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sna_evaluation_latency_seconds",
			Help:    "Evaluation pipeline latency.",
			Buckets: prometheus.DefBuckets,
		}),
		EASCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sna_eas_current",
			Help: "Current earned autonomy score.",
		}),
		EscalationPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sna_escalation_pending_count",
			Help: "Escalations currently in PENDING state.",
		}),
		ExecutionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sna_execution_total",
			Help: "Recorded executions by success.",
		}, []string{"success"}),
		ExecutionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sna_execution_latency_seconds",
			Help:    "Reported duration of recorded executions.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		NotificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sna_notification_total",
			Help: "Notifications sent by channel.",
		}, []string{"channel"}),
		ValidationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sna_validation_total",
			Help: "Validator runs by outcome status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.EvaluationTotal,
		m.EvaluationLatency,
		m.EASCurrent,
		m.EscalationPending,
		m.ExecutionTotal,
		m.ExecutionLatency,
		m.NotificationTotal,
		m.ValidationTotal,
	)
	return m
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
