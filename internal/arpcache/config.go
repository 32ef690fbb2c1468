package arpcache

import (
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultSize is ARP_CACHE_SIZE from the spec: the number of entry slots
	// in the fixed-size valid-entry table.
	DefaultSize = 100

	// DefaultEntryTimeout is arp_entry_timeout's default: how long a valid
	// entry survives before the sweeper invalidates it.
	DefaultEntryTimeout = 15 * time.Second

	// sweepInterval is the sweeper's fixed cadence (spec: "1 Hz").
	sweepInterval = 1 * time.Second

	// maxRetries is the number of unanswered broadcasts tolerated before a
	// pending request is destroyed and Host Unreachable is emitted for its
	// queued packets.
	maxRetries = 5
)

// retrySpacing is the minimum time between two broadcasts of the same
// pending request (spec: "last-sent >= 1s ago"). Derived from a constant
// backoff rather than written as a bare duration literal, so the cadence
// goes through the same retry-policy type the rest of the codebase uses for
// anything re-attempted on a timer (see probing.DefaultListenFuncWithRetry's
// exponential policy) — here the policy is simply never-growing.
var retrySpacing = backoff.NewConstantBackOff(1 * time.Second).NextBackOff()

// Config wires a Cache to its collaborators and tunables. Every long-lived
// component in this router is constructed this way so tests can supply a
// fake clock, a discarding logger, and a deterministic eviction choice.
type Config struct {
	Logger *slog.Logger

	// Size is the number of slots in the fixed-size valid-entry table
	// (ARP_CACHE_SIZE). Defaults to DefaultSize.
	Size int

	// EntryTimeout is how long a valid entry survives before the sweeper
	// invalidates it. Defaults to DefaultEntryTimeout.
	EntryTimeout time.Duration

	// Clock is injected so the sweeper's 1 Hz cadence and 5-retry exhaustion
	// path are deterministically testable. Defaults to clockwork.NewRealClock().
	Clock clockwork.Clock

	// Rand seeds the pseudorandom eviction policy used when InsertMac finds
	// no invalid slot. Defaults to a time-seeded source.
	Rand func(n int) int

	// Broadcast is called by the sweeper to transmit an ARP request; Host is
	// called to emit an ICMP Host Unreachable for a packet whose resolution
	// failed, after the sweeper has released the cache lock, so it may call
	// back into the Cache. Both are required: the cache has no notion of a link layer of
	// its own, mirroring how liveness.Manager is handed a UDPService rather
	// than opening its own socket.
	Broadcast BroadcastFunc
	Host      HostUnreachableFunc
}

// BroadcastFunc transmits a broadcast ARP request for targetIP out outIface.
// The closure supplied by the composition root already has access to the
// interface table, so it alone resolves outIface's own MAC/IP to fill the
// request's sender fields — the cache itself knows nothing about interfaces.
type BroadcastFunc func(targetIP uint32, outIface string) error

// HostUnreachableFunc emits an ICMP Host Unreachable toward the original
// sender of a packet that was queued awaiting ARP resolution and never
// resolved.
type HostUnreachableFunc func(pkt PendingPacket)

// Validate fills defaults and enforces constraints, mirroring
// liveness.ManagerConfig.Validate and probing.Config.Validate.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("arpcache: logger is required")
	}
	if c.Broadcast == nil {
		return errors.New("arpcache: broadcast func is required")
	}
	if c.Host == nil {
		return errors.New("arpcache: host unreachable func is required")
	}
	if c.Size == 0 {
		c.Size = DefaultSize
	}
	if c.Size < 0 {
		return errors.New("arpcache: size must be greater than 0")
	}
	if c.EntryTimeout == 0 {
		c.EntryTimeout = DefaultEntryTimeout
	}
	if c.EntryTimeout < 0 {
		return errors.New("arpcache: entry timeout must be greater than 0")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Rand == nil {
		c.Rand = defaultRand
	}
	return nil
}
