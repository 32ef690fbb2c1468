package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// TCPMinHdrLen is the length of a TCP header with no options.
	TCPMinHdrLen = 20

	TCPFlagFIN uint8 = 1 << 0
	TCPFlagSYN uint8 = 1 << 1
	TCPFlagRST uint8 = 1 << 2
	TCPFlagACK uint8 = 1 << 4
)

// TCPHeader is the subset of the TCP header this router inspects: ports,
// sequence numbers, and flags. It never reads or rewrites options or payload.
type TCPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Seq      uint32
	Ack      uint32
	DataOff  uint8 // top 4 bits of byte 12, in 32-bit words
	Flags    uint8
	Window   uint16
	Checksum uint16
	Urgent   uint16
}

// ParseTCP reads a TCP header from the front of b.
func ParseTCP(b []byte) (TCPHeader, error) {
	if len(b) < TCPMinHdrLen {
		return TCPHeader{}, fmt.Errorf("wire: tcp header too short: %d bytes", len(b))
	}
	return TCPHeader{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Seq:      binary.BigEndian.Uint32(b[4:8]),
		Ack:      binary.BigEndian.Uint32(b[8:12]),
		DataOff:  b[12] >> 4,
		Flags:    b[13],
		Window:   binary.BigEndian.Uint16(b[14:16]),
		Checksum: binary.BigEndian.Uint16(b[16:18]),
		Urgent:   binary.BigEndian.Uint16(b[18:20]),
	}, nil
}

// PutTCPPorts rewrites only the source and destination port fields of a TCP
// header in place, leaving sequence numbers, flags and options untouched.
// This is the operation NAT rewriting needs; the rest of the segment (and
// its payload) is forwarded byte-for-byte.
func PutTCPPorts(b []byte, srcPort, dstPort uint16) error {
	if len(b) < 4 {
		return fmt.Errorf("wire: buffer too short for tcp ports: %d bytes", len(b))
	}
	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	return nil
}

// HasFlags reports whether all bits set in want are also set in h.Flags.
func (h TCPHeader) HasFlags(want uint8) bool {
	return h.Flags&want == want
}

// RecomputeTCPChecksum zeroes the checksum field in segment (which must
// start at the TCP header and run to the end of the payload) and writes
// back the checksum computed over the pseudo-header (src, dst, protocol,
// TCP length) followed by segment. Required after NAT rewrites either
// address or either port, since both feed the pseudo-header sum.
func RecomputeTCPChecksum(segment []byte, srcIP, dstIP uint32) error {
	if len(segment) < TCPMinHdrLen {
		return fmt.Errorf("wire: buffer too short for tcp segment: %d bytes", len(segment))
	}
	segment[16], segment[17] = 0, 0

	pseudo := make([]byte, 12+len(segment))
	binary.BigEndian.PutUint32(pseudo[0:4], srcIP)
	binary.BigEndian.PutUint32(pseudo[4:8], dstIP)
	pseudo[8] = 0
	pseudo[9] = ProtoTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))
	copy(pseudo[12:], segment)

	sum := Checksum(pseudo)
	binary.BigEndian.PutUint16(segment[16:18], sum)
	return nil
}
