package datapath

import (
	"github.com/yixiongchen/nat/internal/wire"
)

// localDeliver handles an IPv4 packet addressed to one of the router's own
// interfaces: ICMP echo is answered directly; TCP/UDP draws a Port
// Unreachable; anything else is dropped. Local delivery never passes
// through NAT translation — it terminates at the router itself.
func (h *Handler) localDeliver(frame []byte, ipHdr wire.IPv4Header, inIface string) error {
	ipOff := wire.EthHdrLen
	switch ipHdr.Protocol {
	case wire.ProtoICMP:
		return h.localEcho(frame, ipHdr, ipOff)
	case wire.ProtoTCP, wire.ProtoUDP:
		return h.sendPortUnreachable(frame, ipHdr)
	default:
		h.logger.Debug("datapath: dropping unsupported local protocol", "protocol", ipHdr.Protocol)
		return ErrUnsupportedLocalProto
	}
}

func (h *Handler) localEcho(frame []byte, ipHdr wire.IPv4Header, ipOff int) error {
	icmpOff := ipOff + wire.IPv4MinHdrLen
	if len(frame) < icmpOff+wire.ICMPEchoHdrLen {
		return ErrMalformedFrame
	}
	icmp, err := wire.ParseICMPEcho(frame[icmpOff:])
	if err != nil {
		return err
	}
	if icmp.Type != wire.ICMPTypeEchoRequest {
		h.logger.Debug("datapath: dropping non-echo-request icmp addressed to router", "type", icmp.Type)
		return ErrUnsupportedLocalProto
	}

	icmpLen := int(ipHdr.TotalLen) - wire.IPv4MinHdrLen
	if icmpOff+icmpLen > len(frame) || icmpLen < wire.ICMPEchoHdrLen {
		return ErrMalformedFrame
	}
	if h.wouldLoop(ipHdr.Src) {
		return nil
	}

	newIPHdr := ipHdr
	newIPHdr.Src, newIPHdr.Dst = ipHdr.Dst, ipHdr.Src
	newIPHdr.TTL = 255
	if err := wire.PutIPv4(frame[ipOff:], newIPHdr); err != nil {
		return err
	}

	icmp.Type = wire.ICMPTypeEchoReply
	if err := wire.PutICMPEcho(frame[icmpOff:], icmp); err != nil {
		return err
	}
	if err := wire.RecomputeICMPChecksum(frame[icmpOff : icmpOff+icmpLen]); err != nil {
		return err
	}
	if err := wire.RecomputeIPv4Checksum(frame[ipOff:]); err != nil {
		return err
	}

	h.metrics.icmpEmitted.WithLabelValues(LabelICMPEchoReply).Inc()
	return h.originate(frame)
}

// sendPortUnreachable answers a TCP or UDP packet addressed to the router
// with ICMP Port Unreachable. Per the spec, the reply's source address is
// the destination of the offending packet — the address the sender
// originally spoke to — not necessarily the ingress interface's address.
func (h *Handler) sendPortUnreachable(frame []byte, ipHdr wire.IPv4Header) error {
	if h.wouldLoop(ipHdr.Src) {
		return nil
	}
	buf, err := h.buildICMPError(ipHdr.Dst, ipHdr.Src, wire.ICMPTypeUnreachable, wire.ICMPCodePortUnreachable, frame[wire.EthHdrLen:])
	if err != nil {
		return err
	}
	h.metrics.icmpEmitted.WithLabelValues(LabelICMPPortUnreachable).Inc()
	return h.originate(buf)
}
