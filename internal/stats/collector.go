package stats

import "github.com/prometheus/client_golang/prometheus"

var eventsDesc = prometheus.NewDesc(
	"postalcrawl_events_total",
	"Pipeline events by stage key.",
	[]string{"key"}, nil,
)

// Describe implements prometheus.Collector.
func (c *Counter) Describe(ch chan<- *prometheus.Desc) {
	ch <- eventsDesc
}

// Collect implements prometheus.Collector, exporting one counter series per key.
func (c *Counter) Collect(ch chan<- prometheus.Metric) {
	for k, v := range c.Snapshot() {
		ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.CounterValue, float64(v), k)
	}
}
