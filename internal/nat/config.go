package nat

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultICMPQueryTimeout is icmp_query_timeout's default: how long an
	// ICMP identifier mapping survives with no traffic.
	DefaultICMPQueryTimeout = 60 * time.Second

	// DefaultTCPEstablishedTimeout is tcp_established_timeout's default: how
	// long a TCP connection in Established, FinWait1, FinWait2 or CloseWait
	// survives with no traffic.
	DefaultTCPEstablishedTimeout = 7440 * time.Second

	// DefaultTCPTransitoryTimeout is tcp_transitory_timeout's default: how
	// long a TCP connection in a transitory state (SynSent, SynRcvd, Closing
	// or LastAck; see IsTransitory) survives with no traffic.
	DefaultTCPTransitoryTimeout = 300 * time.Second

	// reapInterval is the reaper's fixed cadence.
	reapInterval = 1 * time.Second

	// minPort and maxPort bound the allocatable external port range.
	// Matches the original's starting point of 1024 with the allocator
	// itself beginning at 1025 (max_port + 1 on the first allocation).
	minPort = 1025
	maxPort = 65535
)

// Config wires a Table to its collaborators and tunables, mirroring
// arpcache.Config's shape.
type Config struct {
	Logger *slog.Logger

	// ExternalIP is the public address mappings are translated to/from —
	// ip_ext in the original. Required.
	ExternalIP uint32

	ICMPQueryTimeout      time.Duration
	TCPEstablishedTimeout time.Duration
	TCPTransitoryTimeout  time.Duration

	// Clock is injected so the reaper's 1 Hz cadence and timeout math are
	// deterministically testable.
	Clock clockwork.Clock
}

// Validate fills defaults and enforces constraints.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("nat: logger is required")
	}
	if c.ExternalIP == 0 {
		return errors.New("nat: external IP is required")
	}
	if c.ICMPQueryTimeout == 0 {
		c.ICMPQueryTimeout = DefaultICMPQueryTimeout
	}
	if c.ICMPQueryTimeout < 0 {
		return errors.New("nat: icmp query timeout must be greater than 0")
	}
	if c.TCPEstablishedTimeout == 0 {
		c.TCPEstablishedTimeout = DefaultTCPEstablishedTimeout
	}
	if c.TCPEstablishedTimeout < 0 {
		return errors.New("nat: tcp established timeout must be greater than 0")
	}
	if c.TCPTransitoryTimeout == 0 {
		c.TCPTransitoryTimeout = DefaultTCPTransitoryTimeout
	}
	if c.TCPTransitoryTimeout < 0 {
		return errors.New("nat: tcp transitory timeout must be greater than 0")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}
