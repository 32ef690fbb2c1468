package arpcache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Entry is one slot of the fixed-size valid-entry table (spec §3 ArpEntry).
type Entry struct {
	Valid      bool
	IP         uint32
	MAC        [6]byte
	InsertedAt time.Time
}

// PendingPacket owns a deep copy of a frame that was waiting on ARP
// resolution, plus the interface it should be sent out on once resolved.
// ApplyNAT records whether the caller still needs NAT translation applied
// at send time, or already performed it before queuing (as inbound NAT
// translation must, since it determines the route the packet queues on).
type PendingPacket struct {
	Frame    []byte
	OutIface string
	ApplyNAT bool
}

// Request is a pending, unresolved ARP resolution for one IPv4 target. It is
// on at most one Cache's queue at a time; a matching reply (InsertMac)
// detaches it for the caller to drain, and DestroyRequest frees it.
type Request struct {
	TargetIP  uint32
	LastSent  time.Time
	SendCount int
	Packets   []PendingPacket
}

// Handle is the opaque value InsertMac and QueueRequest hand back to
// callers. Per the spec, a Handle must never be freed by the caller
// directly; it is returned to DestroyRequest instead. In Go there is no
// manual free, but the contract still matters: a Handle returned by
// QueueRequest remains owned by the Cache (it is still on the queue) while
// one returned by InsertMac has already been detached and is owned by the
// caller, who must eventually call DestroyRequest to release its packets.
type Handle = *Request

// Cache is the ARP resolution cache: a fixed-size array of valid entries
// plus an unbounded list of pending requests, guarded by one mutex that the
// sweeper holds while it expires entries and retries or fails requests
// (spec: "recursive mutex"). Rather than a real reentrant lock, the sweeper
// calls the unexported *Locked helpers directly while already holding mu,
// and invokes the Host callback only after releasing it — see sweeper.go and
// DESIGN.md's note on REDESIGN FLAGS §9.
type Cache struct {
	cfg Config

	mu       sync.Mutex
	entries  []Entry
	requests []*Request

	metrics *metrics

	stopSweeper func()
}

// New constructs a Cache and starts its sweeper goroutine. Callers must call
// Close to stop the sweeper.
func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		cfg:     cfg,
		entries: make([]Entry, cfg.Size),
		metrics: newMetrics(),
	}
	c.stopSweeper = c.startSweeper()
	return c, nil
}

// Collectors returns every metric for registration with an external
// registry.
func (c *Cache) Collectors() []prometheus.Collector {
	return c.metrics.Collectors()
}

// Close stops the sweeper goroutine and blocks until it has exited.
func (c *Cache) Close() error {
	if c.stopSweeper != nil {
		c.stopSweeper()
	}
	return nil
}

// Lookup performs a linear scan of valid entries for ip, returning a copy of
// the matching MAC. (I1: at most one valid entry per IP, so the first match
// found is the only match.)
func (c *Cache) Lookup(ip uint32) ([6]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(ip)
}

func (c *Cache) lookupLocked(ip uint32) ([6]byte, bool) {
	for _, e := range c.entries {
		if e.Valid && e.IP == ip {
			c.metrics.lookupHits.Inc()
			return e.MAC, true
		}
	}
	c.metrics.lookupMisses.Inc()
	return [6]byte{}, false
}

// QueueRequest appends a deep copy of frame to the pending request for ip,
// creating the request if none exists yet. The returned Handle is owned by
// the Cache; callers must not mutate or destroy it themselves. applyNAT is
// carried on the queued packet and consulted at resolution time (see
// PendingPacket.ApplyNAT).
func (c *Cache) QueueRequest(ip uint32, frame []byte, outIface string, applyNAT bool) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueRequestLocked(ip, frame, outIface, applyNAT)
}

func (c *Cache) queueRequestLocked(ip uint32, frame []byte, outIface string, applyNAT bool) Handle {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	pkt := PendingPacket{Frame: cp, OutIface: outIface, ApplyNAT: applyNAT}

	for _, r := range c.requests {
		if r.TargetIP == ip {
			r.Packets = append(r.Packets, pkt)
			return r
		}
	}

	r := &Request{TargetIP: ip, Packets: []PendingPacket{pkt}}
	c.requests = append(c.requests, r)
	c.metrics.pendingRequests.Set(float64(len(c.requests)))
	return r
}

// InsertMac records ip -> mac as a valid entry: refreshing the existing valid
// entry for ip if one exists (I1: at most one valid entry per IP), otherwise
// overwriting the first invalid slot, or a pseudorandom slot if the cache is
// full. If a pending request for ip exists, it is detached and returned
// without destroying it — the caller drains its packets and then calls
// DestroyRequest.
func (c *Cache) InsertMac(mac [6]byte, ip uint32) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertMacLocked(mac, ip)
}

func (c *Cache) insertMacLocked(mac [6]byte, ip uint32) Handle {
	slot := -1
	for i, e := range c.entries {
		if e.Valid && e.IP == ip {
			slot = i
			break
		}
	}
	if slot == -1 {
		for i, e := range c.entries {
			if !e.Valid {
				slot = i
				break
			}
		}
	}
	if slot == -1 {
		slot = c.cfg.Rand(len(c.entries))
		c.metrics.evictions.Inc()
	}
	c.entries[slot] = Entry{Valid: true, IP: ip, MAC: mac, InsertedAt: c.cfg.Clock.Now()}
	c.metrics.insertions.Inc()

	for i, r := range c.requests {
		if r.TargetIP == ip {
			c.requests = append(c.requests[:i], c.requests[i+1:]...)
			c.metrics.pendingRequests.Set(float64(len(c.requests)))
			return r
		}
	}
	return nil
}

// DestroyRequest removes h from the queue (if still present — InsertMac
// already detaches before returning a Handle, so this is a no-op in that
// case) and releases its packets.
func (c *Cache) DestroyRequest(h Handle) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyRequestLocked(h)
}

func (c *Cache) destroyRequestLocked(h Handle) {
	for i, r := range c.requests {
		if r == h {
			c.requests = append(c.requests[:i], c.requests[i+1:]...)
			c.metrics.pendingRequests.Set(float64(len(c.requests)))
			return
		}
	}
}

// Snapshot returns a defensive copy of the valid entries, for tests and
// diagnostics.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}
