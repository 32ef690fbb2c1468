// Package iface holds the router's interface table: an immutable map from
// interface name to its MAC and IPv4 address, loaded once at startup.
package iface

import "fmt"

// MaxNameLen is the longest interface name the wire format and config loader
// accept.
const MaxNameLen = 32

// Interface is one router-owned network interface. Immutable after creation.
type Interface struct {
	Name string
	MAC  [6]byte
	IP   uint32
}

// Table is an immutable name -> Interface lookup, with a secondary index by
// IPv4 address for the datapath's "is this addressed to me" checks.
type Table struct {
	byName map[string]Interface
	byIP   map[uint32]Interface
	order  []string
}

// New builds a Table from ifaces. Duplicate names overwrite earlier entries;
// callers are expected to pass a well-formed, deduplicated config.
func New(ifaces []Interface) (*Table, error) {
	t := &Table{
		byName: make(map[string]Interface, len(ifaces)),
		byIP:   make(map[uint32]Interface, len(ifaces)),
	}
	for _, i := range ifaces {
		if len(i.Name) == 0 || len(i.Name) > MaxNameLen {
			return nil, fmt.Errorf("iface: invalid interface name %q", i.Name)
		}
		if _, exists := t.byName[i.Name]; !exists {
			t.order = append(t.order, i.Name)
		}
		t.byName[i.Name] = i
		t.byIP[i.IP] = i
	}
	return t, nil
}

// Lookup returns the interface named name, if any.
func (t *Table) Lookup(name string) (Interface, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// ByIP returns the interface whose own IPv4 address is ip — used to decide
// whether a received packet is addressed to the router itself.
func (t *Table) ByIP(ip uint32) (Interface, bool) {
	i, ok := t.byIP[ip]
	return i, ok
}

// All returns every interface, in the order they were first added.
func (t *Table) All() []Interface {
	out := make([]Interface, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.byName[name])
	}
	return out
}
