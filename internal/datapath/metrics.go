package datapath

import "github.com/prometheus/client_golang/prometheus"

// metrics are created per-Handler rather than via promauto's default
// registry, matching arpcache.metrics and nat.metrics.
type metrics struct {
	framesHandled prometheus.Counter
	framesDropped *prometheus.CounterVec
	icmpEmitted   *prometheus.CounterVec
}

// Label values for framesDropped's "reason" label.
const (
	LabelReasonMalformed    = "malformed"
	LabelReasonNoRoute      = "no_route"
	LabelReasonTTLExceeded  = "ttl_exceeded"
	LabelReasonUnsupported  = "unsupported_local_proto"
	LabelReasonArpFailure   = "arp_failure"
	LabelReasonNatMiss      = "nat_miss_external"
	LabelReasonNatExhausted = "nat_exhaustion"
)

// Label values for icmpEmitted's "type" label.
const (
	LabelICMPEchoReply       = "echo_reply"
	LabelICMPTimeExceeded    = "time_exceeded"
	LabelICMPNetUnreachable  = "net_unreachable"
	LabelICMPHostUnreachable = "host_unreachable"
	LabelICMPPortUnreachable = "port_unreachable"
)

func newMetrics() *metrics {
	return &metrics{
		framesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_datapath_frames_handled_total",
			Help: "Frames passed to HandleFrame.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_datapath_frames_dropped_total",
			Help: "Frames dropped, by reason.",
		}, []string{"reason"}),
		icmpEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_datapath_icmp_emitted_total",
			Help: "ICMP messages the router originated, by type.",
		}, []string{"type"}),
	}
}

// Collectors returns every metric for registration with an external
// registry.
func (m *metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.framesHandled, m.framesDropped, m.icmpEmitted}
}
