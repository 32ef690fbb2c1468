package datapath

import (
	"errors"

	"github.com/yixiongchen/nat/internal/wire"
)

// forwardNATInbound is the entry point for external->internal NAT traffic.
//
// It exists because such traffic is addressed to the router's own external
// IP — the NAT'd address every mapping shares — which would otherwise be
// caught by the ordinary "is this packet for me" check and handed to
// localDeliver, which has no notion of NAT at all. handleIPv4 calls this
// first, for anything arriving on the external interface that looks like it
// could be a NAT reply, before it ever considers local delivery.
//
// Unlike outbound translation (triggered lazily at egress, once the egress
// interface is known), inbound translation has to run before routing: the
// translated destination (the internal host's real address) is what the
// route decision is actually made on, and the original destination (the
// router's own external IP) wouldn't resolve to any useful route at all.
func (h *Handler) forwardNATInbound(frame []byte, ipHdr wire.IPv4Header, inIface string) (handled bool, err error) {
	ifc, ok := h.ifaces.Lookup(inIface)
	if !ok || ipHdr.Dst != ifc.IP {
		// Not addressed to our NAT'd external address: ordinary transit
		// traffic (if any route exists for it) or a future local-delivery
		// decision, neither of which NAT has an opinion on.
		return false, nil
	}

	ipOff := wire.EthHdrLen
	if !isInboundNATCandidate(frame, ipHdr, ipOff) {
		return false, nil
	}

	if err := h.rewriteInbound(frame, ipHdr, ipOff); err != nil {
		if errors.Is(err, ErrNatMissExternal) {
			h.logger.Debug("datapath: dropping external packet with no nat mapping", "src", ipHdr.Src)
			h.metrics.framesDropped.WithLabelValues(LabelReasonNatMiss).Inc()
			return true, nil
		}
		return true, err
	}

	translated, err := wire.ParseIPv4(frame[ipOff:])
	if err != nil {
		return true, err
	}

	route := h.routes.LongestPrefixMatch(translated.Dst)
	if route.IsNoRoute() {
		h.logger.Warn("datapath: nat translated packet but found no route to internal host", "dst", translated.Dst)
		return true, nil
	}
	if mac, ok := h.arp.Lookup(route.Gateway); ok {
		return true, h.egress(frame, route.Interface, mac, true, false)
	}
	h.arp.QueueRequest(route.Gateway, frame, route.Interface, false)
	return true, nil
}

// isInboundNATCandidate reports whether frame looks like traffic a NAT
// mapping could answer for: any TCP segment (the NAT table itself resolves
// hit vs. miss), or an ICMP echo reply specifically — an echo request
// addressed to the router's external IP is a ping of the router itself and
// belongs to local delivery, not NAT.
func isInboundNATCandidate(frame []byte, ipHdr wire.IPv4Header, ipOff int) bool {
	switch ipHdr.Protocol {
	case wire.ProtoTCP:
		return true
	case wire.ProtoICMP:
		icmpOff := ipOff + wire.IPv4MinHdrLen
		if len(frame) < icmpOff+wire.ICMPEchoHdrLen {
			return false
		}
		icmp, err := wire.ParseICMPEcho(frame[icmpOff:])
		if err != nil {
			return false
		}
		return icmp.Type == wire.ICMPTypeEchoReply
	default:
		return false
	}
}
