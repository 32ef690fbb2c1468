package datapath

import (
	"fmt"

	"github.com/yixiongchen/nat/internal/arpcache"
	"github.com/yixiongchen/nat/internal/iface"
	"github.com/yixiongchen/nat/internal/wire"
)

// handleARP processes a received ARP-over-Ethernet packet: replies to
// who-has requests for one of our own addresses, and feeds replies into the
// ARP cache, draining any packets that were waiting on that resolution.
func (h *Handler) handleARP(frame []byte, inIface string) error {
	if len(frame) < wire.EthHdrLen+wire.ArpHdrLen {
		h.logger.Debug("datapath: arp packet too short", "len", len(frame), "in_iface", inIface)
		return ErrMalformedFrame
	}
	pkt, err := wire.ParseARP(frame[wire.EthHdrLen:])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	ifc, ok := h.ifaces.Lookup(inIface)
	if !ok {
		return fmt.Errorf("datapath: arp received on unknown interface %q", inIface)
	}
	if pkt.TargetIP != ifc.IP {
		// Not proxy ARP: silently ignore resolution requests for anyone
		// else's address.
		return nil
	}

	switch pkt.Opcode {
	case wire.ArpOpRequest:
		return h.replyARP(pkt, ifc, inIface)
	case wire.ArpOpReply:
		return h.handleARPReply(pkt, inIface)
	default:
		h.logger.Debug("datapath: dropping arp packet with unknown opcode", "opcode", pkt.Opcode)
		return nil
	}
}

func (h *Handler) replyARP(req wire.ARPPacket, ifc iface.Interface, inIface string) error {
	reply := wire.ARPPacket{
		HWType:    req.HWType,
		ProtoType: req.ProtoType,
		HWLen:     req.HWLen,
		ProtoLen:  req.ProtoLen,
		Opcode:    wire.ArpOpReply,
		SenderMAC: ifc.MAC,
		SenderIP:  ifc.IP,
		TargetMAC: req.SenderMAC,
		TargetIP:  req.SenderIP,
	}
	buf := make([]byte, wire.EthHdrLen+wire.ArpHdrLen)
	if err := wire.PutEthernet(buf, wire.EthernetHeader{Dst: req.SenderMAC, Src: ifc.MAC, EtherType: wire.EthTypeARP}); err != nil {
		return err
	}
	if err := wire.PutARP(buf[wire.EthHdrLen:], reply); err != nil {
		return err
	}
	return h.link.SendFrame(buf, inIface)
}

func (h *Handler) handleARPReply(reply wire.ARPPacket, inIface string) error {
	req := h.arp.InsertMac(reply.SenderMAC, reply.SenderIP)
	if req == nil {
		return nil
	}
	for _, pkt := range req.Packets {
		if err := h.resolveAndSend(pkt, reply.SenderMAC); err != nil {
			h.logger.Warn("datapath: failed to transmit packet resolved by arp reply", "error", err)
		}
	}
	h.arp.DestroyRequest(req)
	return nil
}

// resolveAndSend transmits a packet that was queued awaiting ARP
// resolution, now that the next hop's MAC is known: decrement TTL, rewrite
// the Ethernet addresses, apply NAT rewriting, recompute the IPv4 checksum,
// and transmit on the packet's stored outgoing interface.
func (h *Handler) resolveAndSend(pkt arpcache.PendingPacket, destMAC [6]byte) error {
	frame := append([]byte(nil), pkt.Frame...)
	return h.egress(frame, pkt.OutIface, destMAC, true, pkt.ApplyNAT)
}

// broadcastARP transmits a broadcast "who-has" request for targetIP out
// outIface. Supplied to arpcache.Config as the Broadcast callback; the
// cache itself has no notion of interfaces, so this closure resolves the
// sender MAC/IP via the interface table before building the frame.
func (h *Handler) broadcastARP(targetIP uint32, outIface string) error {
	ifc, ok := h.ifaces.Lookup(outIface)
	if !ok {
		return fmt.Errorf("datapath: broadcast requested on unknown interface %q", outIface)
	}
	req := wire.NewARPRequest(ifc.MAC, ifc.IP, targetIP)
	buf := make([]byte, wire.EthHdrLen+wire.ArpHdrLen)
	if err := wire.PutEthernet(buf, wire.EthernetHeader{Dst: wire.BroadcastMAC, Src: ifc.MAC, EtherType: wire.EthTypeARP}); err != nil {
		return err
	}
	if err := wire.PutARP(buf[wire.EthHdrLen:], req); err != nil {
		return err
	}
	return h.link.SendFrame(buf, outIface)
}

// hostUnreachable emits ICMP Host Unreachable toward the original sender of
// a packet whose ARP resolution exhausted all retries. Supplied to
// arpcache.Config as the Host callback.
func (h *Handler) hostUnreachable(pkt arpcache.PendingPacket) {
	if len(pkt.Frame) < wire.EthHdrLen+wire.IPv4MinHdrLen {
		return
	}
	ipHdr, err := wire.ParseIPv4(pkt.Frame[wire.EthHdrLen:])
	if err != nil {
		return
	}
	if h.wouldLoop(ipHdr.Src) {
		return
	}
	ifc, ok := h.ifaces.Lookup(pkt.OutIface)
	if !ok {
		return
	}
	buf, err := h.buildICMPError(ifc.IP, ipHdr.Src, wire.ICMPTypeUnreachable, wire.ICMPCodeHostUnreachable, pkt.Frame[wire.EthHdrLen:])
	if err != nil {
		h.logger.Warn("datapath: failed to build host unreachable", "error", err)
		return
	}
	h.metrics.icmpEmitted.WithLabelValues(LabelICMPHostUnreachable).Inc()
	if err := h.originate(buf); err != nil {
		h.logger.Warn("datapath: failed to send host unreachable", "error", err)
	}
}
