package datapath

import (
	"fmt"

	"github.com/yixiongchen/nat/internal/wire"
)

// handleIPv4 processes a received IPv4-over-Ethernet packet: validates its
// header checksum, then dispatches to local delivery, a TTL-exceeded
// diagnostic, or forwarding.
func (h *Handler) handleIPv4(frame []byte, inIface string) error {
	ipOff := wire.EthHdrLen
	if len(frame) < ipOff+wire.IPv4MinHdrLen {
		h.logger.Debug("datapath: ipv4 header too short", "len", len(frame), "in_iface", inIface)
		return ErrMalformedFrame
	}
	if wire.VerifyChecksum(frame[ipOff:ipOff+wire.IPv4MinHdrLen]) != 0xFFFF {
		h.logger.Debug("datapath: ipv4 header checksum mismatch", "in_iface", inIface)
		return ErrMalformedFrame
	}
	ipHdr, err := wire.ParseIPv4(frame[ipOff:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	if h.natEnabled && inIface == h.externalIface {
		if handled, err := h.forwardNATInbound(frame, ipHdr, inIface); handled {
			return err
		}
	}

	if _, ok := h.ifaces.ByIP(ipHdr.Dst); ok {
		return h.localDeliver(frame, ipHdr, inIface)
	}

	if ipHdr.TTL <= 1 {
		h.logger.Debug("datapath: ttl exceeded", "src", ipHdr.Src, "dst", ipHdr.Dst)
		if !h.wouldLoop(ipHdr.Src) {
			if ifc, ok := h.ifaces.Lookup(inIface); ok {
				if buf, err := h.buildICMPError(ifc.IP, ipHdr.Src, wire.ICMPTypeTimeExceeded, wire.ICMPCodeTTLExceeded, frame[ipOff:]); err == nil {
					h.metrics.icmpEmitted.WithLabelValues(LabelICMPTimeExceeded).Inc()
					if err := h.originate(buf); err != nil {
						h.logger.Warn("datapath: failed to send time exceeded", "error", err)
					}
				}
			}
		}
		return ErrTTLExceeded
	}

	return h.forward(frame, ipHdr, inIface)
}

// forward performs longest-prefix-match forwarding: on no route, emit ICMP
// Net Unreachable; on a match, either transmit immediately (ARP hit) or
// queue behind an ARP request (ARP miss) for the sweeper to drive.
func (h *Handler) forward(frame []byte, ipHdr wire.IPv4Header, inIface string) error {
	route := h.routes.LongestPrefixMatch(ipHdr.Dst)
	if route.IsNoRoute() {
		h.logger.Debug("datapath: no route", "dst", ipHdr.Dst)
		if !h.wouldLoop(ipHdr.Src) {
			if ifc, ok := h.ifaces.Lookup(inIface); ok {
				if buf, err := h.buildICMPError(ifc.IP, ipHdr.Src, wire.ICMPTypeUnreachable, wire.ICMPCodeNetUnreachable, frame[wire.EthHdrLen:]); err == nil {
					h.metrics.icmpEmitted.WithLabelValues(LabelICMPNetUnreachable).Inc()
					if err := h.originate(buf); err != nil {
						h.logger.Warn("datapath: failed to send net unreachable", "error", err)
					}
				}
			}
		}
		return ErrNoRoute
	}

	if mac, ok := h.arp.Lookup(route.Gateway); ok {
		return h.egress(frame, route.Interface, mac, true, true)
	}
	h.arp.QueueRequest(route.Gateway, frame, route.Interface, true)
	return nil
}
