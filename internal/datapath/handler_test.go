package datapath

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/yixiongchen/nat/internal/iface"
	"github.com/yixiongchen/nat/internal/routing"
	"github.com/yixiongchen/nat/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentFrame struct {
	frame    []byte
	outIface string
}

type fakeLink struct {
	sent []sentFrame
}

func (f *fakeLink) SendFrame(frame []byte, outIface string) error {
	cp := append([]byte(nil), frame...)
	f.sent = append(f.sent, sentFrame{frame: cp, outIface: outIface})
	return nil
}

func ip4(a, b, c, d byte) uint32 {
	return binary.BigEndian.Uint32([]byte{a, b, c, d})
}

var (
	routerMAC = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	h1MAC     = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	gwMAC     = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x03}

	routerIP = ip4(10, 0, 1, 1)
	h1IP     = ip4(10, 0, 1, 11)
	h2IP     = ip4(192, 168, 0, 50)
	gwIP     = ip4(10, 0, 1, 254)
)

func newTestHandler(t *testing.T, clock clockwork.Clock, cfg Config) (*Handler, *fakeLink) {
	t.Helper()
	ifaces, err := iface.New([]iface.Interface{
		{Name: "eth0", MAC: routerMAC, IP: routerIP},
	})
	require.NoError(t, err)
	routes := routing.New([]routing.Entry{
		{Destination: ip4(10, 0, 1, 0), Mask: ip4(255, 255, 255, 0), Gateway: ip4(10, 0, 1, 1), Interface: "eth0"},
		{Destination: ip4(192, 168, 0, 0), Mask: ip4(255, 255, 255, 0), Gateway: gwIP, Interface: "eth0"},
	})
	link := &fakeLink{}
	cfg.Logger = testLogger()
	cfg.Interfaces = ifaces
	cfg.Routes = routes
	cfg.Link = link
	cfg.Clock = clock
	cfg.ARPCacheSize = 8
	if cfg.ARPEntryTimeout == 0 {
		cfg.ARPEntryTimeout = 15 * time.Second
	}
	h, err := NewHandler(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, link
}

func buildEthFrame(dstMAC, srcMAC [6]byte, etherType uint16, payload []byte) []byte {
	frame := make([]byte, wire.EthHdrLen+len(payload))
	_ = wire.PutEthernet(frame, wire.EthernetHeader{Dst: dstMAC, Src: srcMAC, EtherType: etherType})
	copy(frame[wire.EthHdrLen:], payload)
	return frame
}

func buildARPRequest(senderMAC [6]byte, senderIP, targetIP uint32) []byte {
	req := wire.NewARPRequest(senderMAC, senderIP, targetIP)
	buf := make([]byte, wire.ArpHdrLen)
	_ = wire.PutARP(buf, req)
	return buildEthFrame(wire.BroadcastMAC, senderMAC, wire.EthTypeARP, buf)
}

func buildIPv4Frame(dstMAC, srcMAC [6]byte, ipHdr wire.IPv4Header, payload []byte) []byte {
	ipHdr.TotalLen = uint16(wire.IPv4MinHdrLen + len(payload))
	body := make([]byte, wire.IPv4MinHdrLen+len(payload))
	_ = wire.PutIPv4(body, ipHdr)
	copy(body[wire.IPv4MinHdrLen:], payload)
	_ = wire.RecomputeIPv4Checksum(body)
	return buildEthFrame(dstMAC, srcMAC, wire.EthTypeIPv4, body)
}

func buildICMPEchoRequest(dstMAC, srcMAC [6]byte, srcIP, dstIP uint32, id, seq uint16) []byte {
	icmp := make([]byte, wire.ICMPEchoHdrLen)
	_ = wire.PutICMPEcho(icmp, wire.ICMPEcho{Type: wire.ICMPTypeEchoRequest, Identifier: id, Sequence: seq})
	_ = wire.RecomputeICMPChecksum(icmp)
	return buildIPv4Frame(dstMAC, srcMAC, wire.IPv4Header{TTL: 64, Protocol: wire.ProtoICMP, Src: srcIP, Dst: dstIP}, icmp)
}

// Scenario 1: ARP request for the router's own address gets a reply.
func TestHandleFrame_ARPRequestForRouter(t *testing.T) {
	t.Parallel()
	h, link := newTestHandler(t, clockwork.NewFakeClock(), Config{})

	frame := buildARPRequest(h1MAC, h1IP, routerIP)
	err := h.HandleFrame(frame, "eth0")
	require.NoError(t, err)

	require.Len(t, link.sent, 1)
	reply, err := wire.ParseARP(link.sent[0].frame[wire.EthHdrLen:])
	require.NoError(t, err)
	require.Equal(t, wire.ArpOpReply, reply.Opcode)
	require.Equal(t, routerMAC, reply.SenderMAC)
	require.Equal(t, routerIP, reply.SenderIP)
	require.Equal(t, h1MAC, reply.TargetMAC)
	require.Equal(t, h1IP, reply.TargetIP)
}

// Scenario 2: forwarding hit — ARP cache pre-primed for the next hop.
func TestHandleFrame_ForwardingHit(t *testing.T) {
	t.Parallel()
	h, link := newTestHandler(t, clockwork.NewFakeClock(), Config{})
	h.arp.InsertMac(gwMAC, gwIP)

	payload := []byte("hello")
	frame := buildIPv4Frame(routerMAC, h1MAC, wire.IPv4Header{TTL: 64, Protocol: wire.ProtoUDP, Src: h1IP, Dst: h2IP}, payload)

	err := h.HandleFrame(frame, "eth0")
	require.NoError(t, err)

	require.Len(t, link.sent, 1)
	out := link.sent[0]
	require.Equal(t, "eth0", out.outIface)
	eth, err := wire.ParseEthernet(out.frame)
	require.NoError(t, err)
	require.Equal(t, gwMAC, eth.Dst)
	ipHdr, err := wire.ParseIPv4(out.frame[wire.EthHdrLen:])
	require.NoError(t, err)
	require.EqualValues(t, 63, ipHdr.TTL)
	require.Equal(t, uint16(0xFFFF), wire.VerifyChecksum(out.frame[wire.EthHdrLen:wire.EthHdrLen+wire.IPv4MinHdrLen]))
	require.Equal(t, payload, out.frame[wire.EthHdrLen+wire.IPv4MinHdrLen:])
}

// Scenario 3: ARP miss exhausts its five retries and emits Host Unreachable.
func TestHandleFrame_ForwardingARPMissExhaustsRetries(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	h, link := newTestHandler(t, clock, Config{})
	h.arp.InsertMac(h1MAC, h1IP)

	frame := buildIPv4Frame(routerMAC, h1MAC, wire.IPv4Header{TTL: 64, Protocol: wire.ProtoUDP, Src: h1IP, Dst: h2IP}, []byte("x"))
	err := h.HandleFrame(frame, "eth0")
	require.NoError(t, err)
	require.Empty(t, link.sent)

	for i := 0; i < 6; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
	}
	clock.BlockUntil(1)

	var broadcasts, unreachables int
	for _, s := range link.sent {
		eth, err := wire.ParseEthernet(s.frame)
		require.NoError(t, err)
		switch eth.EtherType {
		case wire.EthTypeARP:
			broadcasts++
			require.Equal(t, wire.BroadcastMAC, eth.Dst)
		case wire.EthTypeIPv4:
			unreachables++
			ipHdr, err := wire.ParseIPv4(s.frame[wire.EthHdrLen:])
			require.NoError(t, err)
			require.Equal(t, wire.ProtoICMP, ipHdr.Protocol)
			require.Equal(t, h1IP, ipHdr.Dst)
		}
	}
	require.Equal(t, 5, broadcasts)
	require.Equal(t, 1, unreachables)
}

// Scenario 4: TTL expiry emits ICMP Time Exceeded.
func TestHandleFrame_TTLExpiry(t *testing.T) {
	t.Parallel()
	h, link := newTestHandler(t, clockwork.NewFakeClock(), Config{})
	h.arp.InsertMac(h1MAC, h1IP)

	frame := buildIPv4Frame(routerMAC, h1MAC, wire.IPv4Header{TTL: 1, Protocol: wire.ProtoUDP, Src: h1IP, Dst: h2IP}, []byte("x"))
	err := h.HandleFrame(frame, "eth0")
	require.ErrorIs(t, err, ErrTTLExceeded)

	require.Len(t, link.sent, 1)
	ipHdr, err := wire.ParseIPv4(link.sent[0].frame[wire.EthHdrLen:])
	require.NoError(t, err)
	require.Equal(t, wire.ProtoICMP, ipHdr.Protocol)
	require.Equal(t, routerIP, ipHdr.Src)
	require.Equal(t, h1IP, ipHdr.Dst)
	icmp, err := wire.ParseICMPEcho(link.sent[0].frame[wire.EthHdrLen+wire.IPv4MinHdrLen:])
	require.NoError(t, err)
	require.Equal(t, wire.ICMPTypeTimeExceeded, icmp.Type)
}

// Scenario 5: local echo.
func TestHandleFrame_LocalEcho(t *testing.T) {
	t.Parallel()
	h, link := newTestHandler(t, clockwork.NewFakeClock(), Config{})
	h.arp.InsertMac(h1MAC, h1IP)

	frame := buildICMPEchoRequest(routerMAC, h1MAC, h1IP, routerIP, 0x1234, 7)
	err := h.HandleFrame(frame, "eth0")
	require.NoError(t, err)

	require.Len(t, link.sent, 1)
	out := link.sent[0]
	ipHdr, err := wire.ParseIPv4(out.frame[wire.EthHdrLen:])
	require.NoError(t, err)
	require.Equal(t, routerIP, ipHdr.Src)
	require.Equal(t, h1IP, ipHdr.Dst)
	require.EqualValues(t, 255, ipHdr.TTL)
	icmp, err := wire.ParseICMPEcho(out.frame[wire.EthHdrLen+wire.IPv4MinHdrLen:])
	require.NoError(t, err)
	require.Equal(t, wire.ICMPTypeEchoReply, icmp.Type)
	require.EqualValues(t, 0x1234, icmp.Identifier)
	require.EqualValues(t, 7, icmp.Sequence)
	require.Equal(t, uint16(0xFFFF), wire.VerifyChecksum(out.frame[wire.EthHdrLen:wire.EthHdrLen+wire.IPv4MinHdrLen]))
}

// A TCP/UDP packet addressed to the router draws Port Unreachable.
func TestHandleFrame_LocalDeliveryTCPDrawsPortUnreachable(t *testing.T) {
	t.Parallel()
	h, link := newTestHandler(t, clockwork.NewFakeClock(), Config{})
	h.arp.InsertMac(h1MAC, h1IP)

	tcp := make([]byte, wire.TCPMinHdrLen)
	_ = wire.PutTCPPorts(tcp, 5000, 80)
	frame := buildIPv4Frame(routerMAC, h1MAC, wire.IPv4Header{TTL: 64, Protocol: wire.ProtoTCP, Src: h1IP, Dst: routerIP}, tcp)

	err := h.HandleFrame(frame, "eth0")
	require.NoError(t, err)
	require.Len(t, link.sent, 1)
	ipHdr, err := wire.ParseIPv4(link.sent[0].frame[wire.EthHdrLen:])
	require.NoError(t, err)
	require.Equal(t, wire.ProtoICMP, ipHdr.Protocol)
	require.Equal(t, routerIP, ipHdr.Src)
	icmp, err := wire.ParseICMPEcho(link.sent[0].frame[wire.EthHdrLen+wire.IPv4MinHdrLen:])
	require.NoError(t, err)
	require.Equal(t, wire.ICMPTypeUnreachable, icmp.Type)
	require.Equal(t, wire.ICMPCodePortUnreachable, icmp.Code)
}
