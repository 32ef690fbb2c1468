package datapath

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yixiongchen/nat/internal/arpcache"
	"github.com/yixiongchen/nat/internal/iface"
	"github.com/yixiongchen/nat/internal/nat"
	"github.com/yixiongchen/nat/internal/routing"
	"github.com/yixiongchen/nat/internal/wire"
)

// Config wires a Handler to its collaborators. The handler owns the ARP
// cache and (when enabled) the NAT table's lifecycle — it constructs both
// internally so their sweeper/reaper callbacks can close over handler
// methods (broadcasting ARP requests, emitting Host Unreachable) without a
// construction-order cycle.
type Config struct {
	Logger     *slog.Logger
	Interfaces *iface.Table
	Routes     *routing.Table
	Link       Link
	Clock      clockwork.Clock

	ARPCacheSize    int
	ARPEntryTimeout time.Duration

	NATEnabled            bool
	InternalIface         string
	ExternalIface         string
	ExternalIP            uint32
	ICMPQueryTimeout      time.Duration
	TCPEstablishedTimeout time.Duration
	TCPTransitoryTimeout  time.Duration
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("datapath: logger is required")
	}
	if c.Interfaces == nil {
		return errors.New("datapath: interface table is required")
	}
	if c.Routes == nil {
		return errors.New("datapath: routing table is required")
	}
	if c.Link == nil {
		return errors.New("datapath: link is required")
	}
	if c.NATEnabled {
		if c.InternalIface == "" || c.ExternalIface == "" {
			return errors.New("datapath: nat enabled but internal/external interface names are empty")
		}
		if c.ExternalIP == 0 {
			return errors.New("datapath: nat enabled but external IP is zero")
		}
	}
	return nil
}

// Handler is the single entry point the link layer delivers frames to. It
// composes the wire codec, routing table, interface table, ARP cache, and
// (optionally) the NAT table.
type Handler struct {
	logger *slog.Logger
	ifaces *iface.Table
	routes *routing.Table
	link   Link

	arp *arpcache.Cache
	nat *nat.Table

	natEnabled    bool
	internalIface string
	externalIface string

	metrics *metrics
}

// NewHandler validates cfg, constructs the ARP cache and (if enabled) the
// NAT table, and starts their background sweeper/reaper goroutines. Callers
// must call Close when done.
func NewHandler(cfg Config) (*Handler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	h := &Handler{
		logger:        cfg.Logger,
		ifaces:        cfg.Interfaces,
		routes:        cfg.Routes,
		link:          cfg.Link,
		natEnabled:    cfg.NATEnabled,
		internalIface: cfg.InternalIface,
		externalIface: cfg.ExternalIface,
		metrics:       newMetrics(),
	}

	cache, err := arpcache.New(arpcache.Config{
		Logger:       cfg.Logger,
		Size:         cfg.ARPCacheSize,
		EntryTimeout: cfg.ARPEntryTimeout,
		Clock:        cfg.Clock,
		Broadcast:    h.broadcastARP,
		Host:         h.hostUnreachable,
	})
	if err != nil {
		return nil, fmt.Errorf("datapath: constructing arp cache: %w", err)
	}
	h.arp = cache

	if cfg.NATEnabled {
		natTable, err := nat.New(nat.Config{
			Logger:                cfg.Logger,
			ExternalIP:            cfg.ExternalIP,
			ICMPQueryTimeout:      cfg.ICMPQueryTimeout,
			TCPEstablishedTimeout: cfg.TCPEstablishedTimeout,
			TCPTransitoryTimeout:  cfg.TCPTransitoryTimeout,
			Clock:                 cfg.Clock,
		})
		if err != nil {
			_ = cache.Close()
			return nil, fmt.Errorf("datapath: constructing nat table: %w", err)
		}
		h.nat = natTable
	}

	return h, nil
}

// Close stops the ARP sweeper and (if running) the NAT reaper.
func (h *Handler) Close() error {
	_ = h.arp.Close()
	if h.nat != nil {
		_ = h.nat.Close()
	}
	return nil
}

// ARPCache exposes the handler's ARP cache, for metrics registration and
// tests.
func (h *Handler) ARPCache() *arpcache.Cache { return h.arp }

// NATTable exposes the handler's NAT table (nil if NAT is disabled), for
// metrics registration and tests.
func (h *Handler) NATTable() *nat.Table { return h.nat }

// Collectors exposes the handler's own frame/ICMP counters, for metrics
// registration alongside ARPCache().Collectors() and NATTable().Collectors().
func (h *Handler) Collectors() []prometheus.Collector { return h.metrics.Collectors() }

// HandleFrame is the datapath's single entry point: every frame the link
// layer receives is passed here, synchronously, one at a time.
func (h *Handler) HandleFrame(frame []byte, inIface string) error {
	h.metrics.framesHandled.Inc()
	if len(frame) < wire.EthHdrLen {
		h.logger.Debug("datapath: frame too short", "len", len(frame), "in_iface", inIface)
		h.metrics.framesDropped.WithLabelValues(LabelReasonMalformed).Inc()
		return ErrMalformedFrame
	}
	eth, err := wire.ParseEthernet(frame)
	if err != nil {
		h.metrics.framesDropped.WithLabelValues(LabelReasonMalformed).Inc()
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	switch eth.EtherType {
	case wire.EthTypeARP:
		return h.handleARP(frame, inIface)
	case wire.EthTypeIPv4:
		err := h.handleIPv4(frame, inIface)
		h.recordDrop(err)
		return err
	default:
		h.logger.Debug("datapath: dropping unsupported ethertype", "ethertype", eth.EtherType, "in_iface", inIface)
		return nil
	}
}

// recordDrop classifies a handleIPv4 error against the reasons tracked by
// framesDropped. Success and the drops already counted by their own emit
// paths (NAT miss/exhaustion, inside egress and forwardNATInbound) are left
// alone here.
func (h *Handler) recordDrop(err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrMalformedFrame):
		h.metrics.framesDropped.WithLabelValues(LabelReasonMalformed).Inc()
	case errors.Is(err, ErrNoRoute):
		h.metrics.framesDropped.WithLabelValues(LabelReasonNoRoute).Inc()
	case errors.Is(err, ErrTTLExceeded):
		h.metrics.framesDropped.WithLabelValues(LabelReasonTTLExceeded).Inc()
	case errors.Is(err, ErrUnsupportedLocalProto):
		h.metrics.framesDropped.WithLabelValues(LabelReasonUnsupported).Inc()
	}
}

// wouldLoop reports whether origSrcIP — the address a synthesized ICMP
// diagnostic would be sent back to — belongs to one of the router's own
// interfaces. Replying in that case would mean the router is answering a
// packet that claims to originate from itself, which can only ever produce
// a feedback loop, so the reply is suppressed.
func (h *Handler) wouldLoop(origSrcIP uint32) bool {
	_, ok := h.ifaces.ByIP(origSrcIP)
	return ok
}
