package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// ICMPEchoHdrLen is the length of an ICMP echo header: type, code,
	// checksum, identifier, sequence.
	ICMPEchoHdrLen = 8

	// ICMPUnreachableHdrLen is the length of an ICMP type-3 header before
	// the embedded offending packet: type, code, checksum, 4 zero bytes.
	ICMPUnreachableHdrLen = 8

	// ICMPUnreachableDataLen is the number of bytes of the offending IPv4
	// packet (header + first 8 bytes of payload) carried by an ICMP type-3
	// message, per RFC 792.
	ICMPUnreachableDataLen = IPv4MinHdrLen + 8

	ICMPTypeEchoReply   uint8 = 0
	ICMPTypeUnreachable uint8 = 3
	ICMPTypeEchoRequest uint8 = 8
	ICMPTypeTimeExceeded uint8 = 11

	ICMPCodeNetUnreachable  uint8 = 0
	ICMPCodeHostUnreachable uint8 = 1
	ICMPCodePortUnreachable uint8 = 3
	ICMPCodeTTLExceeded     uint8 = 0
)

// ICMPEcho is an ICMP echo request/reply header (type 8 or 0).
type ICMPEcho struct {
	Type       uint8
	Code       uint8
	Checksum   uint16
	Identifier uint16
	Sequence   uint16
}

// ParseICMPEcho reads an 8-byte ICMP echo header from the front of b.
// Any payload following the header is left untouched in b.
func ParseICMPEcho(b []byte) (ICMPEcho, error) {
	if len(b) < ICMPEchoHdrLen {
		return ICMPEcho{}, fmt.Errorf("wire: icmp echo header too short: %d bytes", len(b))
	}
	return ICMPEcho{
		Type:       b[0],
		Code:       b[1],
		Checksum:   binary.BigEndian.Uint16(b[2:4]),
		Identifier: binary.BigEndian.Uint16(b[4:6]),
		Sequence:   binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// PutICMPEcho writes h into the first ICMPEchoHdrLen bytes of b.
func PutICMPEcho(b []byte, h ICMPEcho) error {
	if len(b) < ICMPEchoHdrLen {
		return fmt.Errorf("wire: buffer too short for icmp echo header: %d bytes", len(b))
	}
	b[0], b[1] = h.Type, h.Code
	binary.BigEndian.PutUint16(b[2:4], h.Checksum)
	binary.BigEndian.PutUint16(b[4:6], h.Identifier)
	binary.BigEndian.PutUint16(b[6:8], h.Sequence)
	return nil
}

// RecomputeICMPChecksum zeroes the checksum field in b[:len(b)] (b must
// start at the ICMP type byte and cover the whole ICMP message) and writes
// the freshly computed checksum back at offset 2.
func RecomputeICMPChecksum(b []byte) error {
	if len(b) < 4 {
		return fmt.Errorf("wire: buffer too short for icmp message: %d bytes", len(b))
	}
	b[2], b[3] = 0, 0
	sum := Checksum(b)
	binary.BigEndian.PutUint16(b[2:4], sum)
	return nil
}

// PutICMPUnreachable writes a type-3 "destination unreachable" message into
// dst, which must be at least ICMPUnreachableHdrLen+len(origPacket) bytes,
// with origPacket truncated to ICMPUnreachableDataLen bytes (IP header plus
// first 8 bytes of payload) per RFC 792. The checksum is left uncomputed;
// call RecomputeICMPChecksum(dst[:n]) afterward.
func PutICMPUnreachable(dst []byte, code uint8, origPacket []byte) (int, error) {
	n := len(origPacket)
	if n > ICMPUnreachableDataLen {
		n = ICMPUnreachableDataLen
	}
	total := ICMPUnreachableHdrLen + n
	if len(dst) < total {
		return 0, fmt.Errorf("wire: buffer too short for icmp unreachable: need %d, have %d", total, len(dst))
	}
	dst[0] = ICMPTypeUnreachable
	dst[1] = code
	dst[2], dst[3] = 0, 0
	dst[4], dst[5], dst[6], dst[7] = 0, 0, 0, 0
	copy(dst[8:total], origPacket[:n])
	return total, nil
}

// PutICMPTimeExceeded writes a type-11 "time exceeded" message, same wire
// shape as type-3 unreachable (4 zero bytes, then the offending packet).
func PutICMPTimeExceeded(dst []byte, code uint8, origPacket []byte) (int, error) {
	n := len(origPacket)
	if n > ICMPUnreachableDataLen {
		n = ICMPUnreachableDataLen
	}
	total := ICMPUnreachableHdrLen + n
	if len(dst) < total {
		return 0, fmt.Errorf("wire: buffer too short for icmp time exceeded: need %d, have %d", total, len(dst))
	}
	dst[0] = ICMPTypeTimeExceeded
	dst[1] = code
	dst[2], dst[3] = 0, 0
	dst[4], dst[5], dst[6], dst[7] = 0, 0, 0, 0
	copy(dst[8:total], origPacket[:n])
	return total, nil
}
