package arpcache

import (
	"context"
	"sync"
	"time"
)

// startSweeper launches the 1 Hz background goroutine that invalidates aged
// entries and drives retry/failure of pending requests. The returned func
// cancels the goroutine and blocks until it has exited, mirroring
// probingWorker's Start/Stop lifecycle in the teacher's route-liveness
// prober: a context.CancelFunc plus a WaitGroup, no condition variables.
func (c *Cache) startSweeper() func() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runSweeper(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (c *Cache) runSweeper(ctx context.Context) {
	ticker := c.cfg.Clock.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.sweepOnce()
		}
	}
}

// sweepOnce performs one sweep: expire aged entries, then retry or fail each
// pending request. It holds the lock for the bookkeeping and calls the
// *Locked helpers directly rather than recursing through the public API —
// see the Cache doc comment. The Host callbacks for failed requests run
// after the lock is released, because the callback re-enters the Cache
// (routing the ICMP reply looks up and may queue on this same cache).
func (c *Cache) sweepOnce() {
	c.mu.Lock()

	now := c.cfg.Clock.Now()
	for i := range c.entries {
		e := &c.entries[i]
		if e.Valid && now.Sub(e.InsertedAt) > c.cfg.EntryTimeout {
			e.Valid = false
			c.metrics.expirations.Inc()
		}
	}

	var failed []PendingPacket
	remaining := c.requests[:0:0]
	for _, r := range c.requests {
		if r.SendCount >= maxRetries {
			failed = append(failed, c.failRequestLocked(r)...)
			continue
		}
		if now.Sub(r.LastSent) >= retrySpacing {
			c.retryRequestLocked(r, now)
		}
		remaining = append(remaining, r)
	}
	c.requests = remaining
	c.mu.Unlock()

	for _, pkt := range failed {
		c.cfg.Host(pkt)
	}
}

// retryRequestLocked broadcasts an ARP request for r's target out the
// interface of its first queued packet and bumps its bookkeeping. Per the
// spec, the interface to broadcast on is always the first packet's — a
// request only ever forwards packets destined through one gateway.
func (c *Cache) retryRequestLocked(r *Request, now time.Time) {
	outIface := r.Packets[0].OutIface
	if err := c.cfg.Broadcast(r.TargetIP, outIface); err != nil {
		c.cfg.Logger.Warn("arpcache: broadcast failed", "target_ip", r.TargetIP, "iface", outIface, "error", err)
	}
	r.LastSent = now
	r.SendCount++
	c.metrics.retries.Inc()
}

// failRequestLocked records r's failure and returns its queued packets; the
// caller (sweepOnce) emits ICMP Host Unreachable for each of them once it has
// released the lock. The caller is also responsible for dropping r from
// c.requests — it does so by simply not appending r to its remaining
// accumulator.
func (c *Cache) failRequestLocked(r *Request) []PendingPacket {
	c.metrics.failures.Inc()
	return r.Packets
}
