package wire

import "fmt"

const (
	// EthHdrLen is the length in bytes of an Ethernet II header: dst MAC,
	// src MAC, then a 2-byte ethertype.
	EthHdrLen = 14

	// MACLen is the length in bytes of a hardware (MAC) address.
	MACLen = 6

	EthTypeARP  uint16 = 0x0806
	EthTypeIPv4 uint16 = 0x0800
)

// BroadcastMAC is the link-layer broadcast address used for ARP requests.
var BroadcastMAC = [MACLen]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// EthernetHeader is the 14-byte Ethernet II header preceding every frame
// this router handles.
type EthernetHeader struct {
	Dst       [MACLen]byte
	Src       [MACLen]byte
	EtherType uint16
}

// ParseEthernet reads the Ethernet header from the front of b. It does not
// validate the ethertype; callers dispatch on EtherType themselves.
func ParseEthernet(b []byte) (EthernetHeader, error) {
	if len(b) < EthHdrLen {
		return EthernetHeader{}, fmt.Errorf("wire: ethernet frame too short: %d bytes", len(b))
	}
	var h EthernetHeader
	copy(h.Dst[:], b[0:6])
	copy(h.Src[:], b[6:12])
	h.EtherType = uint16(b[12])<<8 | uint16(b[13])
	return h, nil
}

// PutEthernet writes h into the first EthHdrLen bytes of b.
func PutEthernet(b []byte, h EthernetHeader) error {
	if len(b) < EthHdrLen {
		return fmt.Errorf("wire: buffer too short for ethernet header: %d bytes", len(b))
	}
	copy(b[0:6], h.Dst[:])
	copy(b[6:12], h.Src[:])
	b[12] = byte(h.EtherType >> 8)
	b[13] = byte(h.EtherType)
	return nil
}

// FormatMAC renders a MAC address in colon-separated hex, e.g. "ff:ff:ff:ff:ff:ff".
func FormatMAC(mac [MACLen]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}
