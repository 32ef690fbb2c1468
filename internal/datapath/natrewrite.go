package datapath

import (
	"errors"
	"fmt"

	"github.com/yixiongchen/nat/internal/nat"
	"github.com/yixiongchen/nat/internal/wire"
)

// rewriteNAT applies outbound NAT translation to a packet about to leave
// outIface, when outIface is the configured external interface: the source
// side (address and, for TCP/ICMP, port/identifier) is translated to the
// external mapping, allocating one if this is a new internal flow.
//
// There is no symmetric trigger here for the internal interface. Inbound
// (external->internal) traffic is addressed to the router's own external
// IP — it has to be NAT-translated before the destination is even known,
// since the translated address is what decides the forwarding route. That
// happens earlier, in forwardNATInbound, which runs before routing rather
// than at egress. By the time an inbound packet reaches egress it has
// already been rewritten, so egress is called with applyNAT false for it.
func (h *Handler) rewriteNAT(frame []byte, outIface string) error {
	if outIface != h.externalIface {
		return nil
	}
	ipOff := wire.EthHdrLen
	ipHdr, err := wire.ParseIPv4(frame[ipOff:])
	if err != nil {
		return err
	}
	return h.rewriteOutbound(frame, ipHdr, ipOff)
}

// rewriteOutbound handles internal->external traffic: the source side
// (address and, for TCP/ICMP, port/identifier) is translated to the
// external mapping.
func (h *Handler) rewriteOutbound(frame []byte, ipHdr wire.IPv4Header, ipOff int) error {
	switch ipHdr.Protocol {
	case wire.ProtoICMP:
		return h.rewriteOutboundICMP(frame, ipHdr, ipOff)
	case wire.ProtoTCP:
		return h.rewriteOutboundTCP(frame, ipHdr, ipOff)
	default:
		return nil
	}
}

func (h *Handler) rewriteOutboundICMP(frame []byte, ipHdr wire.IPv4Header, ipOff int) error {
	icmpOff := ipOff + wire.IPv4MinHdrLen
	if len(frame) < icmpOff+wire.ICMPEchoHdrLen {
		return nil
	}
	icmp, err := wire.ParseICMPEcho(frame[icmpOff:])
	if err != nil {
		return err
	}
	if icmp.Type != wire.ICMPTypeEchoRequest {
		return nil
	}

	mapping, ok := h.nat.LookupInternal(nat.MappingICMP, ipHdr.Src, icmp.Identifier, 0, 0, nat.TCPFlags{})
	if !ok {
		m, err := h.nat.Insert(nat.MappingICMP, ipHdr.Src, icmp.Identifier, 0, 0)
		if err != nil {
			if errors.Is(err, nat.ErrPortExhausted) {
				return ErrNatExhaustion
			}
			return fmt.Errorf("datapath: nat insert: %w", err)
		}
		mapping = m
	}

	be32(frame[ipOff+12:ipOff+16], mapping.ExtIP)
	icmp.Identifier = mapping.ExtPort
	if err := wire.PutICMPEcho(frame[icmpOff:], icmp); err != nil {
		return err
	}
	icmpLen := int(ipHdr.TotalLen) - wire.IPv4MinHdrLen
	return wire.RecomputeICMPChecksum(frame[icmpOff : icmpOff+icmpLen])
}

func (h *Handler) rewriteOutboundTCP(frame []byte, ipHdr wire.IPv4Header, ipOff int) error {
	tcpOff := ipOff + wire.IPv4MinHdrLen
	if len(frame) < tcpOff+wire.TCPMinHdrLen {
		return nil
	}
	tcp, err := wire.ParseTCP(frame[tcpOff:])
	if err != nil {
		return err
	}
	flags := tcpFlagsOf(tcp)

	mapping, ok := h.nat.LookupInternal(nat.MappingTCP, ipHdr.Src, tcp.SrcPort, ipHdr.Dst, tcp.DstPort, flags)
	if !ok {
		m, err := h.nat.Insert(nat.MappingTCP, ipHdr.Src, tcp.SrcPort, ipHdr.Dst, tcp.DstPort)
		if err != nil {
			if errors.Is(err, nat.ErrPortExhausted) {
				return ErrNatExhaustion
			}
			return fmt.Errorf("datapath: nat insert: %w", err)
		}
		mapping = m
	}

	be32(frame[ipOff+12:ipOff+16], mapping.ExtIP)
	if err := wire.PutTCPPorts(frame[tcpOff:], mapping.ExtPort, tcp.DstPort); err != nil {
		return err
	}
	return wire.RecomputeTCPChecksum(frame[tcpOff:], mapping.ExtIP, ipHdr.Dst)
}

// rewriteInbound translates the destination side of an external->internal
// packet back to the internal host it belongs to. Called from
// forwardNATInbound, before routing, rather than from rewriteNAT at egress:
// see rewriteNAT's comment for why. A miss (no existing mapping) is a
// NatMissExternal: the packet is silently dropped rather than forwarded or
// diagnosed, since there is no internal host to attribute it to.
func (h *Handler) rewriteInbound(frame []byte, ipHdr wire.IPv4Header, ipOff int) error {
	switch ipHdr.Protocol {
	case wire.ProtoICMP:
		return h.rewriteInboundICMP(frame, ipHdr, ipOff)
	case wire.ProtoTCP:
		return h.rewriteInboundTCP(frame, ipHdr, ipOff)
	default:
		return nil
	}
}

func (h *Handler) rewriteInboundICMP(frame []byte, ipHdr wire.IPv4Header, ipOff int) error {
	icmpOff := ipOff + wire.IPv4MinHdrLen
	if len(frame) < icmpOff+wire.ICMPEchoHdrLen {
		return nil
	}
	icmp, err := wire.ParseICMPEcho(frame[icmpOff:])
	if err != nil {
		return err
	}
	if icmp.Type != wire.ICMPTypeEchoReply {
		return nil
	}

	mapping, ok := h.nat.LookupExternal(nat.MappingICMP, icmp.Identifier, 0, 0, nat.TCPFlags{})
	if !ok {
		return ErrNatMissExternal
	}

	be32(frame[ipOff+16:ipOff+20], mapping.IntIP)
	icmp.Identifier = mapping.IntPort
	if err := wire.PutICMPEcho(frame[icmpOff:], icmp); err != nil {
		return err
	}
	icmpLen := int(ipHdr.TotalLen) - wire.IPv4MinHdrLen
	return wire.RecomputeICMPChecksum(frame[icmpOff : icmpOff+icmpLen])
}

func (h *Handler) rewriteInboundTCP(frame []byte, ipHdr wire.IPv4Header, ipOff int) error {
	tcpOff := ipOff + wire.IPv4MinHdrLen
	if len(frame) < tcpOff+wire.TCPMinHdrLen {
		return nil
	}
	tcp, err := wire.ParseTCP(frame[tcpOff:])
	if err != nil {
		return err
	}
	flags := tcpFlagsOf(tcp)

	mapping, ok := h.nat.LookupExternal(nat.MappingTCP, tcp.DstPort, ipHdr.Src, tcp.SrcPort, flags)
	if !ok {
		return ErrNatMissExternal
	}

	be32(frame[ipOff+16:ipOff+20], mapping.IntIP)
	if err := wire.PutTCPPorts(frame[tcpOff:], tcp.SrcPort, mapping.IntPort); err != nil {
		return err
	}
	return wire.RecomputeTCPChecksum(frame[tcpOff:], ipHdr.Src, mapping.IntIP)
}

func tcpFlagsOf(h wire.TCPHeader) nat.TCPFlags {
	return nat.TCPFlags{
		SYN: h.HasFlags(wire.TCPFlagSYN),
		ACK: h.HasFlags(wire.TCPFlagACK),
		FIN: h.HasFlags(wire.TCPFlagFIN),
	}
}
