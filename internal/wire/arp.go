package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// ArpHdrLen is the length in bytes of an ARP packet for IPv4-over-Ethernet
	// (hlen=6, plen=4): htype, ptype, hlen, plen, opcode, sender HW/proto,
	// target HW/proto.
	ArpHdrLen = 28

	ArpHTypeEthernet uint16 = 1
	ArpPTypeIPv4     uint16 = 0x0800
	ArpHLenEthernet  uint8  = MACLen
	ArpPLenIPv4      uint8  = 4

	ArpOpRequest uint16 = 1
	ArpOpReply   uint16 = 2
)

// ARPPacket is the ARP payload that follows the Ethernet header for
// IPv4-over-Ethernet resolution (RFC 826).
type ARPPacket struct {
	HWType    uint16
	ProtoType uint16
	HWLen     uint8
	ProtoLen  uint8
	Opcode    uint16
	SenderMAC [MACLen]byte
	SenderIP  uint32
	TargetMAC [MACLen]byte
	TargetIP  uint32
}

// ParseARP reads an ARP packet from b, which must start immediately after
// the Ethernet header.
func ParseARP(b []byte) (ARPPacket, error) {
	if len(b) < ArpHdrLen {
		return ARPPacket{}, fmt.Errorf("wire: arp packet too short: %d bytes", len(b))
	}
	var p ARPPacket
	p.HWType = binary.BigEndian.Uint16(b[0:2])
	p.ProtoType = binary.BigEndian.Uint16(b[2:4])
	p.HWLen = b[4]
	p.ProtoLen = b[5]
	p.Opcode = binary.BigEndian.Uint16(b[6:8])
	copy(p.SenderMAC[:], b[8:14])
	p.SenderIP = binary.BigEndian.Uint32(b[14:18])
	copy(p.TargetMAC[:], b[18:24])
	p.TargetIP = binary.BigEndian.Uint32(b[24:28])
	return p, nil
}

// PutARP writes p into the first ArpHdrLen bytes of b.
func PutARP(b []byte, p ARPPacket) error {
	if len(b) < ArpHdrLen {
		return fmt.Errorf("wire: buffer too short for arp packet: %d bytes", len(b))
	}
	binary.BigEndian.PutUint16(b[0:2], p.HWType)
	binary.BigEndian.PutUint16(b[2:4], p.ProtoType)
	b[4] = p.HWLen
	b[5] = p.ProtoLen
	binary.BigEndian.PutUint16(b[6:8], p.Opcode)
	copy(b[8:14], p.SenderMAC[:])
	binary.BigEndian.PutUint32(b[14:18], p.SenderIP)
	copy(b[18:24], p.TargetMAC[:])
	binary.BigEndian.PutUint32(b[24:28], p.TargetIP)
	return nil
}

// NewARPRequest builds a standard IPv4-over-Ethernet "who-has" ARP request.
func NewARPRequest(senderMAC [MACLen]byte, senderIP uint32, targetIP uint32) ARPPacket {
	return ARPPacket{
		HWType:    ArpHTypeEthernet,
		ProtoType: ArpPTypeIPv4,
		HWLen:     ArpHLenEthernet,
		ProtoLen:  ArpPLenIPv4,
		Opcode:    ArpOpRequest,
		SenderMAC: senderMAC,
		SenderIP:  senderIP,
		TargetMAC: [MACLen]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		TargetIP:  targetIP,
	}
}
