package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the call flow. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal      *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	TransfersTotal  *prometheus.CounterVec
	ToolCallsTotal  *prometheus.CounterVec
	BargeInsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsExpired prometheus.Counter
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voiceorder"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "turns_total", Help: "Caller turns processed"},
			[]string{"agent", "outcome"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Time from utterance to reply text",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"agent"},
		),
		TransfersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "transfers_total", Help: "Agent handoffs"},
			[]string{"from", "to"},
		),
		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "tool_calls_total", Help: "Tool executions"},
			[]string{"tool", "status"},
		),
		BargeInsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "barge_ins_total", Help: "Playback interrupted by the caller"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "sessions_active", Help: "Live call sessions"},
		),
		SessionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "sessions_expired_total", Help: "Sessions removed by the idle sweep"},
		),
	}
	registry.MustRegister(
		m.TurnsTotal, m.TurnDuration, m.TransfersTotal, m.ToolCallsTotal,
		m.BargeInsTotal, m.SessionsActive, m.SessionsExpired,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTurn(agent, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(agent, outcome).Inc()
	m.TurnDuration.WithLabelValues(agent).Observe(d.Seconds())
}

func (m *Metrics) ObserveTransfer(from, to string) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveTool(tool string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) ObserveBargeIn() {
	if m == nil {
		return
	}
	m.BargeInsTotal.Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) SessionsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsExpired.Add(float64(n))
	m.SessionsActive.Sub(float64(n))
}
