package config

import (
	"fmt"

	"github.com/vishvananda/netlink"

	"github.com/yixiongchen/nat/internal/iface"
)

// DiscoverInterfaces enumerates the host's live network interfaces via
// netlink and builds an iface.Table from them, as an alternative to the
// static interfaces file for local testing and demos. The static file
// loaded by Load remains the authoritative source for a deployed router;
// this is additive convenience, not a replacement.
//
// Interfaces with no IPv4 address, or that are down, are skipped: only
// usable router-facing links are worth wiring into the datapath.
func DiscoverInterfaces() (*iface.Table, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("config: listing links: %w", err)
	}

	var entries []iface.Interface
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil || attrs.Flags&netlink.FlagUp == 0 {
			continue
		}
		mac := attrs.HardwareAddr
		if len(mac) != 6 {
			continue
		}

		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, fmt.Errorf("config: listing addresses for %s: %w", attrs.Name, err)
		}
		if len(addrs) == 0 {
			continue
		}
		v4 := addrs[0].IP.To4()
		if v4 == nil {
			continue
		}

		var macArr [6]byte
		copy(macArr[:], mac)
		ip := uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
		entries = append(entries, iface.Interface{Name: attrs.Name, MAC: macArr, IP: ip})
	}

	return iface.New(entries)
}
