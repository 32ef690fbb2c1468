// Package config loads the router's static configuration: the interface
// table, the forwarding table, and the NAT parameters, each from its own
// JSON file. The wire format is deliberately small and flat, following
// routing.loadConfig's shape (open, decode, validate field by field) rather
// than carrying a generic nested settings tree.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/yixiongchen/nat/internal/arpcache"
	"github.com/yixiongchen/nat/internal/iface"
	"github.com/yixiongchen/nat/internal/nat"
	"github.com/yixiongchen/nat/internal/routing"
)

// Config is the fully parsed, validated result of Load: ready to hand to
// datapath.Config without further translation.
type Config struct {
	Interfaces *iface.Table
	Routes     *routing.Table

	NATEnabled            bool
	InternalIface         string
	ExternalIface         string
	ExternalIP            uint32
	ICMPQueryTimeout      time.Duration
	TCPEstablishedTimeout time.Duration
	TCPTransitoryTimeout  time.Duration

	ARPCacheSize    int
	ARPEntryTimeout time.Duration
}

// interfaceEntry is one row of the interfaces file.
type interfaceEntry struct {
	Name string `json:"name"`
	MAC  string `json:"mac"`
	IP   string `json:"ip"`
}

// routeEntry is one row of the routes file.
type routeEntry struct {
	Destination string `json:"destination"`
	Mask        string `json:"mask"`
	Gateway     string `json:"gateway"`
	Interface   string `json:"interface"`
}

// natFile is the NAT parameters file. Timeouts are given in whole seconds;
// zero means "use the default" rather than "zero duration", matching
// arpcache.Config/nat.Config's own zero-means-default Validate behavior.
type natFile struct {
	Enabled                bool   `json:"enabled"`
	InternalIface          string `json:"internal_iface"`
	ExternalIface          string `json:"external_iface"`
	ExternalIP             string `json:"external_ip"`
	ICMPQueryTimeoutS      int    `json:"icmp_query_timeout_s"`
	TCPEstablishedTimeoutS int    `json:"tcp_established_timeout_s"`
	TCPTransitoryTimeoutS  int    `json:"tcp_transitory_timeout_s"`
	ARPEntryTimeoutS       int    `json:"arp_entry_timeout_s"`
	ARPCacheSize           int    `json:"arp_cache_size"`
}

// Load reads and validates the three configuration files and returns a
// ready-to-use Config. Missing optional NAT fields fall back to the
// defaults documented alongside nat.Config and arpcache.Config.
func Load(ifacesPath, routesPath, natPath string) (*Config, error) {
	ifaceEntries, err := loadInterfaces(ifacesPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	ifaces, err := iface.New(ifaceEntries)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	routeEntries, err := loadRoutes(routesPath, ifaces)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	routes := routing.New(routeEntries)

	var nf natFile
	if natPath != "" {
		nf, err = loadNAT(natPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg := &Config{
		Interfaces:      ifaces,
		Routes:          routes,
		ARPCacheSize:    arpcache.DefaultSize,
		ARPEntryTimeout: arpcache.DefaultEntryTimeout,
	}
	if nf.ARPCacheSize != 0 {
		cfg.ARPCacheSize = nf.ARPCacheSize
	}
	if nf.ARPEntryTimeoutS != 0 {
		cfg.ARPEntryTimeout = time.Duration(nf.ARPEntryTimeoutS) * time.Second
	}

	if !nf.Enabled {
		return cfg, nil
	}

	cfg.NATEnabled = true
	cfg.InternalIface = nf.InternalIface
	cfg.ExternalIface = nf.ExternalIface
	cfg.ICMPQueryTimeout = nat.DefaultICMPQueryTimeout
	cfg.TCPEstablishedTimeout = nat.DefaultTCPEstablishedTimeout
	cfg.TCPTransitoryTimeout = nat.DefaultTCPTransitoryTimeout

	if cfg.InternalIface == "" || cfg.ExternalIface == "" {
		return nil, fmt.Errorf("config: nat enabled but internal_iface/external_iface are empty")
	}
	if _, ok := ifaces.Lookup(cfg.InternalIface); !ok {
		return nil, fmt.Errorf("config: nat internal_iface %q not in interface table", cfg.InternalIface)
	}
	extIface, ok := ifaces.Lookup(cfg.ExternalIface)
	if !ok {
		return nil, fmt.Errorf("config: nat external_iface %q not in interface table", cfg.ExternalIface)
	}

	if nf.ExternalIP != "" {
		ip, err := parseIPv4(nf.ExternalIP)
		if err != nil {
			return nil, fmt.Errorf("config: nat external_ip: %w", err)
		}
		cfg.ExternalIP = ip
	} else {
		cfg.ExternalIP = extIface.IP
	}

	if nf.ICMPQueryTimeoutS != 0 {
		cfg.ICMPQueryTimeout = time.Duration(nf.ICMPQueryTimeoutS) * time.Second
	}
	if nf.TCPEstablishedTimeoutS != 0 {
		cfg.TCPEstablishedTimeout = time.Duration(nf.TCPEstablishedTimeoutS) * time.Second
	}
	if nf.TCPTransitoryTimeoutS != 0 {
		cfg.TCPTransitoryTimeout = time.Duration(nf.TCPTransitoryTimeoutS) * time.Second
	}

	return cfg, nil
}

func loadInterfaces(path string) ([]iface.Interface, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening interfaces file: %w", err)
	}
	defer f.Close()

	var entries []interfaceEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding interfaces file: %w", err)
	}

	out := make([]iface.Interface, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("interface entry missing name")
		}
		mac, err := net.ParseMAC(e.MAC)
		if err != nil || len(mac) != 6 {
			return nil, fmt.Errorf("interface %q: invalid mac %q", e.Name, e.MAC)
		}
		ip, err := parseIPv4(e.IP)
		if err != nil {
			return nil, fmt.Errorf("interface %q: invalid ip: %w", e.Name, err)
		}
		var macArr [6]byte
		copy(macArr[:], mac)
		out = append(out, iface.Interface{Name: e.Name, MAC: macArr, IP: ip})
	}
	return out, nil
}

func loadRoutes(path string, ifaces *iface.Table) ([]routing.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening routes file: %w", err)
	}
	defer f.Close()

	var entries []routeEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding routes file: %w", err)
	}

	out := make([]routing.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := ifaces.Lookup(e.Interface); !ok {
			return nil, fmt.Errorf("route %s: interface %q not in interface table", e.Destination, e.Interface)
		}
		dst, err := parseIPv4(e.Destination)
		if err != nil {
			return nil, fmt.Errorf("route: invalid destination: %w", err)
		}
		mask, err := parseIPv4(e.Mask)
		if err != nil {
			return nil, fmt.Errorf("route: invalid mask: %w", err)
		}
		var gw uint32
		if e.Gateway != "" {
			gw, err = parseIPv4(e.Gateway)
			if err != nil {
				return nil, fmt.Errorf("route: invalid gateway: %w", err)
			}
		}
		out = append(out, routing.Entry{Destination: dst, Mask: mask, Gateway: gw, Interface: e.Interface})
	}
	return out, nil
}

func loadNAT(path string) (natFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return natFile{}, fmt.Errorf("opening nat file: %w", err)
	}
	defer f.Close()

	var nf natFile
	if err := json.NewDecoder(f).Decode(&nf); err != nil {
		return natFile{}, fmt.Errorf("decoding nat file: %w", err)
	}
	return nf, nil
}

func parseIPv4(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("invalid IPv4 address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not an IPv4 address %q", s)
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), nil
}
