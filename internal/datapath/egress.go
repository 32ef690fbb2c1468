package datapath

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/yixiongchen/nat/internal/wire"
)

// egress is the single place a fully-formed IPv4 frame leaves the router:
// it optionally decrements TTL, rewrites the Ethernet addresses for
// outIface, optionally applies NAT translation, recomputes the IPv4
// checksum, and hands the frame to the link layer. The NAT rewrite (when
// applyNAT is set and NAT is enabled) runs before the final checksum pass
// so a single recompute at the end always produces a correct header
// (invariant I6), regardless of whether NAT touched the packet.
func (h *Handler) egress(frame []byte, outIface string, destMAC [6]byte, decrementTTL, applyNAT bool) error {
	ipOff := wire.EthHdrLen
	if len(frame) < ipOff+wire.IPv4MinHdrLen {
		return ErrMalformedFrame
	}
	if decrementTTL {
		frame[ipOff+8]--
	}
	ifc, ok := h.ifaces.Lookup(outIface)
	if !ok {
		return fmt.Errorf("datapath: egress on unknown interface %q", outIface)
	}
	if err := wire.PutEthernet(frame, wire.EthernetHeader{Dst: destMAC, Src: ifc.MAC, EtherType: wire.EthTypeIPv4}); err != nil {
		return err
	}
	if applyNAT && h.natEnabled {
		if err := h.rewriteNAT(frame, outIface); err != nil {
			if errors.Is(err, ErrNatMissExternal) {
				h.logger.Debug("datapath: dropping inbound external packet with no nat mapping", "out_iface", outIface)
				h.metrics.framesDropped.WithLabelValues(LabelReasonNatMiss).Inc()
				return nil
			}
			if errors.Is(err, ErrNatExhaustion) {
				h.logger.Warn("datapath: dropping packet, nat port range exhausted")
				h.metrics.framesDropped.WithLabelValues(LabelReasonNatExhausted).Inc()
				return nil
			}
			return err
		}
	}
	if err := wire.RecomputeIPv4Checksum(frame[ipOff:]); err != nil {
		return err
	}
	return h.link.SendFrame(frame, outIface)
}

// originate routes and transmits a packet the router itself generated (an
// ICMP reply or diagnostic, or a locally-answered echo): longest-prefix
// match on its destination, then ARP resolve or queue exactly like a
// forwarded packet, but never through NAT (the packet is addressed to or
// from the router itself, not a NAT'd host) and never with its TTL
// decremented again (the caller already set a fresh TTL).
func (h *Handler) originate(frame []byte) error {
	ipOff := wire.EthHdrLen
	ipHdr, err := wire.ParseIPv4(frame[ipOff:])
	if err != nil {
		return err
	}
	route := h.routes.LongestPrefixMatch(ipHdr.Dst)
	if route.IsNoRoute() {
		h.logger.Debug("datapath: no route for self-originated packet", "dst", ipHdr.Dst)
		return nil
	}
	if mac, ok := h.arp.Lookup(route.Gateway); ok {
		return h.egress(frame, route.Interface, mac, false, false)
	}
	// resolveAndSend decrements the TTL of every queued packet once the next
	// hop resolves; raise it by one here so the fresh TTL is what is sent.
	frame[ipOff+8]++
	h.arp.QueueRequest(route.Gateway, frame, route.Interface, false)
	return nil
}

// buildICMPError assembles a full Ethernet+IPv4+ICMP frame for a type-3 (or
// type-11) diagnostic. The Ethernet header is left zeroed — egress (via
// originate) fills it in once the next hop is known. origIPPacket is the
// offending packet starting at its IP header; it is truncated to
// ICMPUnreachableDataLen bytes per RFC 792.
func (h *Handler) buildICMPError(srcIP, dstIP uint32, icmpType, code uint8, origIPPacket []byte) ([]byte, error) {
	dataLen := len(origIPPacket)
	if dataLen > wire.ICMPUnreachableDataLen {
		dataLen = wire.ICMPUnreachableDataLen
	}
	icmpLen := wire.ICMPUnreachableHdrLen + dataLen
	total := wire.EthHdrLen + wire.IPv4MinHdrLen + icmpLen
	buf := make([]byte, total)

	ipOff := wire.EthHdrLen
	ipHdr := wire.IPv4Header{
		TotalLen: uint16(wire.IPv4MinHdrLen + icmpLen),
		TTL:      64,
		Protocol: wire.ProtoICMP,
		Src:      srcIP,
		Dst:      dstIP,
	}
	if err := wire.PutIPv4(buf[ipOff:], ipHdr); err != nil {
		return nil, err
	}

	icmpOff := ipOff + wire.IPv4MinHdrLen
	var n int
	var err error
	if icmpType == wire.ICMPTypeTimeExceeded {
		n, err = wire.PutICMPTimeExceeded(buf[icmpOff:], code, origIPPacket)
	} else {
		n, err = wire.PutICMPUnreachable(buf[icmpOff:], code, origIPPacket)
	}
	if err != nil {
		return nil, err
	}
	if err := wire.RecomputeICMPChecksum(buf[icmpOff : icmpOff+n]); err != nil {
		return nil, err
	}
	if err := wire.RecomputeIPv4Checksum(buf[ipOff:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// be32 is a small helper for in-place 4-byte field rewrites (NAT address
// translation) that shouldn't disturb any other header field.
func be32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
