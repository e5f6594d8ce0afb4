package exporter

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promCollector renders the latest cycle's filtered samples as gauges.
// The metric set follows whatever the device reports, so this is an
// unchecked collector: Describe stays empty and descriptors are built
// per scrape.
type promCollector struct {
	service  *Service
	hostname string
}

func (c *promCollector) Describe(chan<- *prometheus.Desc) {}

func (c *promCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.service.latest.Load()
	if snap == nil {
		return
	}

	labels := prometheus.Labels{
		"device_type": snap.deviceType,
		"hostname":    c.hostname,
	}
	for name, value := range snap.samples {
		desc := prometheus.NewDesc(name, "Metric: "+name, nil, labels)
		metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, value)
		if err != nil {
			continue
		}
		ch <- metric
	}
}

// MetricsHandler returns the Prometheus exposition handler for the
// metrics port.
func (s *Service) MetricsHandler() http.Handler {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(&promCollector{service: s, hostname: hostname})

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
