package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// KeyspaceCollector reports store statistics at scrape time.
type KeyspaceCollector struct {
	keys    func() int64
	keysDsc *prometheus.Desc
}

// NewKeyspaceCollector creates a collector that calls keys on every scrape.
func NewKeyspaceCollector(keys func() int64) *KeyspaceCollector {
	return &KeyspaceCollector{
		keys: keys,
		keysDsc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "keys"),
			"Number of keys in the store.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *KeyspaceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keysDsc
}

// Collect implements prometheus.Collector.
func (c *KeyspaceCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.keysDsc, prometheus.GaugeValue, float64(c.keys()))
}
