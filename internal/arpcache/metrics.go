package arpcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics are created per-Cache rather than via promauto's default registry,
// so multiple Caches (e.g. one per test) don't collide on registration —
// mirrors how internal/liveness and internal/probing scope their Metrics
// structs to a *prometheus.Registry passed in through Config.
type metrics struct {
	lookupHits      prometheus.Counter
	lookupMisses    prometheus.Counter
	insertions      prometheus.Counter
	evictions       prometheus.Counter
	expirations     prometheus.Counter
	retries         prometheus.Counter
	failures        prometheus.Counter
	pendingRequests prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		lookupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_arpcache_lookup_hits_total",
			Help: "ARP cache lookups that found a valid entry.",
		}),
		lookupMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_arpcache_lookup_misses_total",
			Help: "ARP cache lookups that found no valid entry.",
		}),
		insertions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_arpcache_insertions_total",
			Help: "ARP cache entries inserted via InsertMac.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_arpcache_evictions_total",
			Help: "ARP cache insertions that overwrote a valid slot because the cache was full.",
		}),
		expirations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_arpcache_expirations_total",
			Help: "ARP cache entries invalidated by the sweeper for exceeding the entry timeout.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_arpcache_request_retries_total",
			Help: "ARP request broadcasts sent by the sweeper.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_arpcache_request_failures_total",
			Help: "ARP requests that exhausted all retries without a reply.",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_arpcache_pending_requests",
			Help: "Current number of unresolved ARP requests.",
		}),
	}
}

// Collectors returns every metric for registration with an external
// registry, following the teacher's pattern of a Metrics.Collectors() helper
// in internal/liveness.
func (m *metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.lookupHits, m.lookupMisses, m.insertions, m.evictions,
		m.expirations, m.retries, m.failures, m.pendingRequests,
	}
}
