package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics: метрики сценариев переводов и вызовов бэкенда
type Metrics struct {
	FlowsStarted   *prometheus.CounterVec
	FlowsFinished  *prometheus.CounterVec
	StepRejections *prometheus.CounterVec
	FlowsEvicted   prometheus.Counter
	ActiveFlows    prometheus.GaugeFunc

	BackendCalls    *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics регистрирует метрики в собственном реестре, чтобы тесты
// могли создавать их многократно. activeFlows может быть nil.
func NewMetrics(activeFlows func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		FlowsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copperx_bot",
			Name:      "flows_started_total",
			Help:      "Transfer flows started, by kind.",
		}, []string{"kind"}),
		FlowsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copperx_bot",
			Name:      "flows_finished_total",
			Help:      "Transfer flows finished, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		StepRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copperx_bot",
			Name:      "step_rejections_total",
			Help:      "Inputs rejected by step validation.",
		}, []string{"kind", "step"}),
		FlowsEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "copperx_bot",
			Name:      "flows_evicted_total",
			Help:      "Flows removed after the idle timeout.",
		}),
		BackendCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copperx_bot",
			Name:      "backend_calls_total",
			Help:      "Backend REST calls, by operation and result.",
		}, []string{"op", "result"}),
		BackendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "copperx_bot",
			Name:      "backend_call_duration_seconds",
			Help:      "Backend REST call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	if activeFlows != nil {
		m.ActiveFlows = f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "copperx_bot",
			Name:      "active_flows",
			Help:      "Flows currently held in memory.",
		}, activeFlows)
	}
	return m
}

// ObserveBackend записывает результат и длительность одного вызова бэкенда
func (m *Metrics) ObserveBackend(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BackendCalls.WithLabelValues(op, result).Inc()
	m.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) FlowStarted(kind string) {
	if m == nil {
		return
	}
	m.FlowsStarted.WithLabelValues(kind).Inc()
}

func (m *Metrics) FlowFinished(kind, outcome string) {
	if m == nil {
		return
	}
	m.FlowsFinished.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) StepRejected(kind, step string) {
	if m == nil {
		return
	}
	m.StepRejections.WithLabelValues(kind, step).Inc()
}

func (m *Metrics) FlowEvicted() {
	if m == nil {
		return
	}
	m.FlowsEvicted.Inc()
}

// Handler отдаёт метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry нужен тестам для чтения значений
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
