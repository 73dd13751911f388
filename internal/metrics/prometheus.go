package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "debate_signaling"

var eventsDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "events_total"),
	"Internal event counters.",
	[]string{"event"},
	nil,
)

// Collector exports every counter in a Metrics registry as a single
// Prometheus counter family with an `event` label.
type Collector struct {
	m *Metrics
}

func NewCollector(m *Metrics) *Collector {
	return &Collector{m: m}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- eventsDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, v := range c.m.Snapshot() {
		ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.CounterValue, float64(v), name)
	}
}

// GaugeFunc reports the current value of fn as a gauge named
// debate_signaling_<name>.
func GaugeFunc(name, help string, fn func() int) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
}

// PrometheusHandler serves m (plus any extra collectors) in the Prometheus
// exposition format from a private registry.
func PrometheusHandler(m *Metrics, extra ...prometheus.Collector) http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(m))
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
