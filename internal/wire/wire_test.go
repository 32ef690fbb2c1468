package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestEthernet_RoundTrip(t *testing.T) {
	t.Parallel()
	h := EthernetHeader{
		Dst:       [MACLen]byte{1, 2, 3, 4, 5, 6},
		Src:       [MACLen]byte{0xa, 0xb, 0xc, 0xd, 0xe, 0xf},
		EtherType: EthTypeIPv4,
	}
	buf := make([]byte, EthHdrLen)
	require.NoError(t, PutEthernet(buf, h))
	got, err := ParseEthernet(buf)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(h, got))
}

func TestARP_RoundTrip(t *testing.T) {
	t.Parallel()
	p := NewARPRequest([MACLen]byte{1, 1, 1, 1, 1, 1}, 0x0a000101, 0x0a000102)
	buf := make([]byte, ArpHdrLen)
	require.NoError(t, PutARP(buf, p))
	got, err := ParseARP(buf)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(p, got))
	require.Equal(t, ArpOpRequest, got.Opcode)
}

func TestIPv4_RoundTrip(t *testing.T) {
	t.Parallel()
	h := IPv4Header{
		TOS:          0,
		TotalLen:     40,
		ID:           0x1234,
		FlagsFragOff: 0,
		TTL:          64,
		Protocol:     ProtoICMP,
		Src:          0x0a000101,
		Dst:          0x0a000102,
	}
	buf := make([]byte, IPv4MinHdrLen)
	require.NoError(t, PutIPv4(buf, h))
	require.NoError(t, RecomputeIPv4Checksum(buf))
	require.Equal(t, uint16(0xFFFF), VerifyChecksum(buf[:IPv4MinHdrLen]))

	got, err := ParseIPv4(buf)
	require.NoError(t, err)
	h.Checksum = got.Checksum
	require.Empty(t, cmp.Diff(h, got))
}

func TestIPv4_ChecksumDetectsCorruption(t *testing.T) {
	t.Parallel()
	h := IPv4Header{TotalLen: 20, TTL: 64, Protocol: ProtoTCP, Src: 1, Dst: 2}
	buf := make([]byte, IPv4MinHdrLen)
	require.NoError(t, PutIPv4(buf, h))
	require.NoError(t, RecomputeIPv4Checksum(buf))
	buf[8] = 63 // corrupt TTL after checksum was computed
	require.NotEqual(t, uint16(0xFFFF), VerifyChecksum(buf[:IPv4MinHdrLen]))
}

func TestICMPEcho_RoundTrip(t *testing.T) {
	t.Parallel()
	h := ICMPEcho{Type: ICMPTypeEchoRequest, Code: 0, Identifier: 42, Sequence: 7}
	buf := make([]byte, ICMPEchoHdrLen)
	require.NoError(t, PutICMPEcho(buf, h))
	require.NoError(t, RecomputeICMPChecksum(buf))
	got, err := ParseICMPEcho(buf)
	require.NoError(t, err)
	h.Checksum = got.Checksum
	require.Empty(t, cmp.Diff(h, got))
}

func TestICMPUnreachable_EmbedsOriginalHeader(t *testing.T) {
	t.Parallel()
	orig := make([]byte, IPv4MinHdrLen+16) // header + more than 8 bytes payload
	for i := range orig {
		orig[i] = byte(i)
	}
	dst := make([]byte, 200)
	n, err := PutICMPUnreachable(dst, ICMPCodePortUnreachable, orig)
	require.NoError(t, err)
	require.Equal(t, ICMPUnreachableHdrLen+ICMPUnreachableDataLen, n)
	require.Equal(t, orig[:ICMPUnreachableDataLen], dst[8:n])
	require.Equal(t, ICMPCodePortUnreachable, dst[1])
}

func TestTCP_RoundTripPortsAndFlags(t *testing.T) {
	t.Parallel()
	h := TCPHeader{SrcPort: 5000, DstPort: 80, Seq: 1, Ack: 0, Flags: TCPFlagSYN}
	buf := make([]byte, TCPMinHdrLen)
	require.NoError(t, PutTCPPorts(buf, h.SrcPort, h.DstPort))
	buf[13] = h.Flags
	got, err := ParseTCP(buf)
	require.NoError(t, err)
	require.Equal(t, h.SrcPort, got.SrcPort)
	require.Equal(t, h.DstPort, got.DstPort)
	require.True(t, got.HasFlags(TCPFlagSYN))
	require.False(t, got.HasFlags(TCPFlagACK))
}

func TestTCP_ChecksumChangesWithRewrite(t *testing.T) {
	t.Parallel()
	buf := make([]byte, TCPMinHdrLen)
	require.NoError(t, PutTCPPorts(buf, 5000, 80))
	buf[13] = TCPFlagSYN
	require.NoError(t, RecomputeTCPChecksum(buf, 0x0a000101, 0x08080808))
	sum1 := append([]byte{}, buf[16:18]...)

	require.NoError(t, PutTCPPorts(buf, 1025, 80))
	require.NoError(t, RecomputeTCPChecksum(buf, 0xc0000201, 0x08080808))
	sum2 := buf[16:18]

	require.NotEqual(t, sum1, sum2)
}
