package nat

import "github.com/prometheus/client_golang/prometheus"

// metrics are created per-Table rather than via promauto's default
// registry, matching arpcache.metrics.
type metrics struct {
	insertions      prometheus.Counter
	expirations     prometheus.Counter
	portExhaustions prometheus.Counter
	activeMappings  prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		insertions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_nat_mappings_inserted_total",
			Help: "NAT mappings created.",
		}),
		expirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_nat_mappings_expired_total",
			Help: "NAT mappings removed by the reaper for exceeding their timeout.",
		}),
		portExhaustions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_nat_port_exhaustions_total",
			Help: "Insert calls rejected because no external port remained.",
		}),
		activeMappings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_nat_active_mappings",
			Help: "Current number of NAT mappings.",
		}),
	}
}

// Collectors returns every metric for registration with an external
// registry.
func (m *metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.insertions, m.expirations, m.portExhaustions, m.activeMappings,
	}
}
