package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// IPv4MinHdrLen is the length in bytes of an IPv4 header with no options.
	// This router never emits or expects options: IHL is always 5.
	IPv4MinHdrLen = 20

	IPv4Version = 4
	IPv4IHL     = 5

	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// IPv4Header is a fixed 20-byte IPv4 header (no options).
type IPv4Header struct {
	TOS            uint8
	TotalLen       uint16
	ID             uint16
	FlagsFragOff   uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Src            uint32
	Dst            uint32
}

// ParseIPv4 reads the IPv4 header from the front of b. It does not verify
// the checksum; callers call VerifyChecksum(b[:IPv4MinHdrLen]) themselves so
// malformed-vs-valid-but-undeliverable can be distinguished by the caller.
func ParseIPv4(b []byte) (IPv4Header, error) {
	if len(b) < IPv4MinHdrLen {
		return IPv4Header{}, fmt.Errorf("wire: ipv4 header too short: %d bytes", len(b))
	}
	versionIHL := b[0]
	if versionIHL>>4 != IPv4Version {
		return IPv4Header{}, fmt.Errorf("wire: unsupported ip version: %d", versionIHL>>4)
	}
	var h IPv4Header
	h.TOS = b[1]
	h.TotalLen = binary.BigEndian.Uint16(b[2:4])
	h.ID = binary.BigEndian.Uint16(b[4:6])
	h.FlagsFragOff = binary.BigEndian.Uint16(b[6:8])
	h.TTL = b[8]
	h.Protocol = b[9]
	h.Checksum = binary.BigEndian.Uint16(b[10:12])
	h.Src = binary.BigEndian.Uint32(b[12:16])
	h.Dst = binary.BigEndian.Uint32(b[16:20])
	return h, nil
}

// PutIPv4 writes h's fixed fields into the first IPv4MinHdrLen bytes of b.
// The checksum field is written verbatim from h.Checksum; callers that want
// a freshly computed checksum must call RecomputeIPv4Checksum afterward.
func PutIPv4(b []byte, h IPv4Header) error {
	if len(b) < IPv4MinHdrLen {
		return fmt.Errorf("wire: buffer too short for ipv4 header: %d bytes", len(b))
	}
	b[0] = IPv4Version<<4 | IPv4IHL
	b[1] = h.TOS
	binary.BigEndian.PutUint16(b[2:4], h.TotalLen)
	binary.BigEndian.PutUint16(b[4:6], h.ID)
	binary.BigEndian.PutUint16(b[6:8], h.FlagsFragOff)
	b[8] = h.TTL
	b[9] = h.Protocol
	binary.BigEndian.PutUint16(b[10:12], h.Checksum)
	binary.BigEndian.PutUint32(b[12:16], h.Src)
	binary.BigEndian.PutUint32(b[16:20], h.Dst)
	return nil
}

// RecomputeIPv4Checksum zeroes the checksum field in b[:IPv4MinHdrLen], sums
// it, and writes the result back. b must be at least IPv4MinHdrLen bytes and
// begin at the start of the IPv4 header.
func RecomputeIPv4Checksum(b []byte) error {
	if len(b) < IPv4MinHdrLen {
		return fmt.Errorf("wire: buffer too short for ipv4 header: %d bytes", len(b))
	}
	b[10], b[11] = 0, 0
	sum := Checksum(b[:IPv4MinHdrLen])
	binary.BigEndian.PutUint16(b[10:12], sum)
	return nil
}
