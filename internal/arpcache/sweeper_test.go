package arpcache

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// TestSweeper_RetriesFiveTimesThenFails exercises end-to-end scenario 3 and
// invariant I4: five broadcasts spaced 1s apart, then on the first tick
// after the limit is reached (the sixth), ICMP Host Unreachable for every
// queued packet and the request is gone.
func TestSweeper_RetriesFiveTimesThenFails(t *testing.T) {
	clock := clockwork.NewFakeClock()

	var mu sync.Mutex
	var broadcasts int
	c, unreachable := newTestCacheWithBroadcastCounter(t, clock, &mu, &broadcasts)

	c.QueueRequest(0x0a000101, []byte{1, 2, 3}, "eth0", true)

	// Six ticks: the request is created with LastSent as the zero time, so
	// the first tick already fires (now - zero >> 1s). Five broadcasts land
	// on ticks 1..5; the sixth tick observes SendCount == 5 and fails it.
	for i := 0; i < 6; i++ {
		clock.BlockUntil(1)
		clock.Advance(sweepInterval)
	}

	// Let the sweeper goroutine process the last tick before asserting.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return broadcasts == maxRetries
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		return len(*unreachable) == 1
	}, time.Second, time.Millisecond)
}

// TestSweepOnce_MultipleRequests_NonTailFailureDoesNotDropOthers guards
// against a regression where failRequestLocked spliced c.requests directly
// while sweepOnce was still ranging over it and building its own remaining
// accumulator: with four requests and a non-tail one failing, the splice
// shifted elements the range hadn't visited yet, silently dropping one
// request's queued packets and processing another twice.
func TestSweepOnce_MultipleRequests_NonTailFailureDoesNotDropOthers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var unreachable []PendingPacket

	c, err := New(Config{
		Logger:    testLogger(),
		Clock:     clock,
		Size:      4,
		Broadcast: func(targetIP uint32, outIface string) error { return nil },
		Host: func(pkt PendingPacket) {
			unreachable = append(unreachable, pkt)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	a := &Request{TargetIP: 1, Packets: []PendingPacket{{Frame: []byte("A")}}}
	b := &Request{TargetIP: 2, Packets: []PendingPacket{{Frame: []byte("B")}}, SendCount: maxRetries}
	cReq := &Request{TargetIP: 3, Packets: []PendingPacket{{Frame: []byte("C")}}}
	d := &Request{TargetIP: 4, Packets: []PendingPacket{{Frame: []byte("D")}}}

	c.mu.Lock()
	c.requests = []*Request{a, b, cReq, d}
	c.mu.Unlock()

	c.sweepOnce()

	c.mu.Lock()
	remaining := append([]*Request(nil), c.requests...)
	c.mu.Unlock()

	require.Len(t, remaining, 3, "A, C, and D must all survive a non-tail failure of B")
	gotIPs := []uint32{remaining[0].TargetIP, remaining[1].TargetIP, remaining[2].TargetIP}
	require.ElementsMatch(t, []uint32{1, 3, 4}, gotIPs)

	require.Len(t, unreachable, 1)
	require.Equal(t, []byte("B"), unreachable[0].Frame)
}

func newTestCacheWithBroadcastCounter(t *testing.T, clock clockwork.Clock, mu *sync.Mutex, count *int) (*Cache, *[]PendingPacket) {
	t.Helper()
	var unreachable []PendingPacket
	c, err := New(Config{
		Logger: testLogger(),
		Clock:  clock,
		Size:   4,
		Broadcast: func(targetIP uint32, outIface string) error {
			mu.Lock()
			*count++
			mu.Unlock()
			return nil
		},
		Host: func(pkt PendingPacket) {
			unreachable = append(unreachable, pkt)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, &unreachable
}
