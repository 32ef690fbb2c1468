package nat

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MappingType distinguishes the two kinds of translation the original
// supports: ICMP identifier rewriting and TCP port rewriting. UDP is out of
// scope, matching the spec's Non-goals.
type MappingType uint8

const (
	MappingICMP MappingType = iota
	MappingTCP
)

func (t MappingType) String() string {
	if t == MappingTCP {
		return "TCP"
	}
	return "ICMP"
}

// Connection tracks one remote peer's TCP state against a single mapping.
// A mapping can have many connections (one internal host:port pair talking
// to several external peers at once), which is why it lives in a slice on
// Mapping rather than being folded into it.
type Connection struct {
	PeerIP      uint32
	PeerPort    uint16
	State       ConnState
	LastUpdated time.Time
}

// Mapping is one internal<->external translation. For MappingICMP, Conns is
// always nil — the mapping itself carries the only timeout that matters
// (icmp_query_timeout). For MappingTCP, Conns holds one Connection per
// distinct remote peer observed through this mapping.
type Mapping struct {
	Type        MappingType
	IntIP       uint32
	IntPort     uint16
	ExtIP       uint32
	ExtPort     uint16
	LastUpdated time.Time
	Conns       []Connection
}

// Table is the NAT mapping table: a set of internal<->external translations
// plus, for TCP, a per-peer connection FSM on each mapping. Locking follows
// the same recursive-mutex-by-convention discipline as arpcache.Cache: the
// reaper goroutine holds mu for an entire sweep and calls the *Locked
// helpers directly instead of recursing through the public, locking API.
type Table struct {
	cfg Config

	mu       sync.Mutex
	mappings []*Mapping
	nextPort uint16 // monotonic external port counter; allocates nextPort+1

	metrics    *metrics
	stopReaper func()
}

// New constructs a Table and starts its 1 Hz reaper goroutine.
func New(cfg Config) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Table{
		cfg:      cfg,
		nextPort: minPort - 1,
		metrics:  newMetrics(),
	}
	t.stopReaper = t.startReaper()
	return t, nil
}

// Close stops the reaper goroutine and waits for it to exit.
func (t *Table) Close() error {
	t.stopReaper()
	return nil
}

// Collectors returns the table's Prometheus collectors for registration with
// an external registry.
func (t *Table) Collectors() []prometheus.Collector {
	return t.metrics.Collectors()
}

// LookupInternal finds the mapping for an internal-origin flow (intIP,
// intPort, typ) and, for TCP, advances the connection FSM for the named
// remote peer in the internal->external direction. Returns a detached copy
// and ok=false if no mapping exists yet — the caller is expected to call
// Insert in that case.
func (t *Table) LookupInternal(typ MappingType, intIP uint32, intPort uint16, peerIP uint32, peerPort uint16, flags TCPFlags) (Mapping, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookupInternalLocked(typ, intIP, intPort, peerIP, peerPort, flags)
}

func (t *Table) lookupInternalLocked(typ MappingType, intIP uint32, intPort uint16, peerIP uint32, peerPort uint16, flags TCPFlags) (Mapping, bool) {
	for _, m := range t.mappings {
		if m.Type != typ || m.IntIP != intIP || m.IntPort != intPort {
			continue
		}
		now := t.cfg.Clock.Now()
		m.LastUpdated = now
		if typ == MappingTCP {
			t.stepConnectionLocked(m, peerIP, peerPort, DirInternalToExternal, flags, now)
		}
		return copyMapping(m), true
	}
	return Mapping{}, false
}

// LookupExternal finds the mapping for an external-origin flow by its
// external port and type, and for TCP advances the connection FSM for the
// sender in the external->internal direction.
func (t *Table) LookupExternal(typ MappingType, extPort uint16, peerIP uint32, peerPort uint16, flags TCPFlags) (Mapping, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookupExternalLocked(typ, extPort, peerIP, peerPort, flags)
}

func (t *Table) lookupExternalLocked(typ MappingType, extPort uint16, peerIP uint32, peerPort uint16, flags TCPFlags) (Mapping, bool) {
	for _, m := range t.mappings {
		if m.Type != typ || m.ExtPort != extPort {
			continue
		}
		now := t.cfg.Clock.Now()
		m.LastUpdated = now
		if typ == MappingTCP {
			t.stepConnectionLocked(m, peerIP, peerPort, DirExternalToInternal, flags, now)
		}
		return copyMapping(m), true
	}
	return Mapping{}, false
}

// stepConnectionLocked finds or creates the Connection for (peerIP,
// peerPort) on m and advances it with Step. A brand new connection is only
// created here when the packet that triggered this lookup carries SYN —
// otherwise an unmatched peer on an existing mapping is left absent rather
// than synthesizing a bogus entry (mirrors creation happening only via
// Insert or an internal SYN on an already-Insert'd mapping, e.g. a second
// connection reusing the same internal host:port to a new external peer).
func (t *Table) stepConnectionLocked(m *Mapping, peerIP uint32, peerPort uint16, dir Direction, flags TCPFlags, now time.Time) {
	for i := range m.Conns {
		c := &m.Conns[i]
		if c.PeerIP == peerIP && c.PeerPort == peerPort {
			c.State = Step(c.State, dir, flags)
			c.LastUpdated = now
			return
		}
	}
	if !flags.SYN {
		return
	}
	initial := StateSynRcvd
	if dir == DirInternalToExternal {
		initial = StateSynSent
	}
	m.Conns = append(m.Conns, Connection{
		PeerIP:      peerIP,
		PeerPort:    peerPort,
		State:       initial,
		LastUpdated: now,
	})
}

// Insert creates a new mapping for an internal-origin flow, allocating the
// next external port. For TCP it also creates the initial connection in
// SynSent unconditionally, mirroring sr_nat_insert_mapping's "sendsyn" path —
// this is correct only because the datapath never calls Insert for a flow
// originating on the external side (an external miss is a drop, not an
// insert; see rewriteInbound* in internal/datapath).
func (t *Table) Insert(typ MappingType, intIP uint32, intPort uint16, peerIP uint32, peerPort uint16) (Mapping, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nextPort >= maxPort {
		t.metrics.portExhaustions.Inc()
		return Mapping{}, ErrPortExhausted
	}
	t.nextPort++
	now := t.cfg.Clock.Now()
	m := &Mapping{
		Type:        typ,
		IntIP:       intIP,
		IntPort:     intPort,
		ExtIP:       t.cfg.ExternalIP,
		ExtPort:     t.nextPort,
		LastUpdated: now,
	}
	if typ == MappingTCP {
		m.Conns = []Connection{{
			PeerIP:      peerIP,
			PeerPort:    peerPort,
			State:       StateSynSent,
			LastUpdated: now,
		}}
	}
	t.mappings = append(t.mappings, m)
	t.metrics.insertions.Inc()
	t.metrics.activeMappings.Set(float64(len(t.mappings)))
	return copyMapping(m), nil
}

// Snapshot returns a defensive deep copy of every mapping, for tests and
// diagnostics.
func (t *Table) Snapshot() []Mapping {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Mapping, len(t.mappings))
	for i, m := range t.mappings {
		out[i] = copyMapping(m)
	}
	return out
}

func copyMapping(m *Mapping) Mapping {
	cp := *m
	if m.Conns != nil {
		cp.Conns = append([]Connection(nil), m.Conns...)
	}
	return cp
}
