// Package link provides the datapath's real link layer: one pcap handle per
// configured interface, used both to transmit frames (datapath.Link) and to
// receive them (Run, driving datapath.Handler.HandleFrame). Grounded on the
// pcap consumer in the teacher monorepo's flow-enricher service, which reads
// full Ethernet frames with gopacket/pcap the same way.
package link

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcap"
)

const (
	snapLen     = 65536
	readTimeout = 100 * time.Millisecond
)

// PCAP owns one live capture handle per router interface.
type PCAP struct {
	logger  *slog.Logger
	handles map[string]*pcap.Handle
	mu      sync.Mutex
}

// Open starts a live, promiscuous capture on every named interface.
func Open(logger *slog.Logger, ifaceNames []string) (*PCAP, error) {
	p := &PCAP{logger: logger, handles: make(map[string]*pcap.Handle, len(ifaceNames))}
	for _, name := range ifaceNames {
		handle, err := pcap.OpenLive(name, snapLen, true, readTimeout)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("link: opening %s: %w", name, err)
		}
		p.handles[name] = handle
	}
	return p, nil
}

// SendFrame implements datapath.Link.
func (p *PCAP) SendFrame(frame []byte, outIface string) error {
	p.mu.Lock()
	handle, ok := p.handles[outIface]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("link: no capture handle for interface %q", outIface)
	}
	return handle.WritePacketData(frame)
}

// FrameHandler is whatever the received frames are delivered to —
// datapath.Handler.HandleFrame, or a fake in tests.
type FrameHandler func(frame []byte, inIface string) error

// Run reads frames from every interface's handle until ctx is cancelled.
// Each interface is read by its own goroutine, but frames are delivered to
// handle one at a time across all interfaces, and a single interface's
// frames are never reordered.
func (p *PCAP) Run(ctx context.Context, handle FrameHandler) {
	var serial sync.Mutex
	deliver := func(frame []byte, inIface string) error {
		serial.Lock()
		defer serial.Unlock()
		return handle(frame, inIface)
	}
	var wg sync.WaitGroup
	for name, h := range p.handles {
		wg.Add(1)
		go func(name string, h *pcap.Handle) {
			defer wg.Done()
			p.runOne(ctx, name, h, deliver)
		}(name, h)
	}
	wg.Wait()
}

func (p *PCAP) runOne(ctx context.Context, name string, h *pcap.Handle, handle FrameHandler) {
	src := gopacket.NewPacketSource(h, h.LinkType())
	packets := src.Packets()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			data := pkt.Data()
			if len(data) == 0 {
				continue
			}
			if err := handle(data, name); err != nil {
				p.logger.Debug("link: frame handling error", "iface", name, "error", err)
			}
		}
	}
}

// Close releases every capture handle.
func (p *PCAP) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handles {
		h.Close()
	}
}
