package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "streamtweet"

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// SideEffectMetrics counts background jobs by name and outcome
// (ok, error, dropped).
type SideEffectMetrics struct {
	JobsTotal  *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

func NewSideEffectMetrics(reg prometheus.Registerer) *SideEffectMetrics {
	m := &SideEffectMetrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "side_effects",
			Name:      "jobs_total",
			Help:      "Background side-effect jobs by name and result.",
		}, []string{"job", "result"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "side_effects",
			Name:      "queue_depth",
			Help:      "Jobs waiting in the side-effect queue.",
		}),
	}
	reg.MustRegister(m.JobsTotal, m.QueueDepth)
	return m
}

func (m *SideEffectMetrics) Observe(job, result string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(job, result).Inc()
}

func (m *SideEffectMetrics) SetDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
