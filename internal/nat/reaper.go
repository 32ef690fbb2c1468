package nat

import (
	"context"
	"sync"
	"time"
)

// startReaper launches the 1 Hz background goroutine that expires idle
// mappings, mirroring arpcache's sweeper lifecycle.
func (t *Table) startReaper() func() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.runReaper(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (t *Table) runReaper(ctx context.Context) {
	ticker := t.cfg.Clock.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.reapOnce()
		}
	}
}

// reapOnce walks every mapping exactly once per tick. The original
// implementation returned out of its traversal as soon as it found one
// expired mapping, silently leaving every mapping after it unexamined until
// the next second; this walks the whole table every tick instead, so an
// old, cold mapping sitting behind a fresh one doesn't linger.
func (t *Table) reapOnce() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.cfg.Clock.Now()
	kept := t.mappings[:0:0]
	for _, m := range t.mappings {
		if t.mappingExpiredLocked(m, now) {
			t.metrics.expirations.Inc()
			continue
		}
		kept = append(kept, m)
	}
	t.mappings = kept
	t.metrics.activeMappings.Set(float64(len(t.mappings)))
}

// mappingExpiredLocked reports whether m should be removed. For TCP
// mappings this first reaps individual connections against their own
// per-state timeout; the mapping itself expires once its connection list
// has gone empty — explicitly set to nil in that case rather than left as
// an empty, non-nil slice, so Snapshot/copyMapping's "no connections" case
// is unambiguous.
func (t *Table) mappingExpiredLocked(m *Mapping, now time.Time) bool {
	if m.Type == MappingICMP {
		return now.Sub(m.LastUpdated) > t.cfg.ICMPQueryTimeout
	}

	live := m.Conns[:0:0]
	for _, c := range m.Conns {
		timeout := t.cfg.TCPEstablishedTimeout
		if IsTransitory(c.State) {
			timeout = t.cfg.TCPTransitoryTimeout
		}
		if now.Sub(c.LastUpdated) <= timeout {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		m.Conns = nil
		return true
	}
	m.Conns = live
	return false
}
