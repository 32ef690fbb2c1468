package nat

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestReaper_ExpiresIdleICMPMapping(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	tbl := newTestTable(t, clock)

	_, err := tbl.Insert(MappingICMP, 0x0a000001, 7, 0, 0)
	require.NoError(t, err)

	clock.BlockUntil(1)
	clock.Advance(DefaultICMPQueryTimeout + reapInterval)

	require.Eventually(t, func() bool {
		return len(tbl.Snapshot()) == 0
	}, time.Second, time.Millisecond)
}

func TestReaper_TransitoryConnectionExpiresBeforeEstablished(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	tbl := newTestTable(t, clock)

	// One mapping with a transitory (SynSent) connection and one with an
	// Established connection, inserted at the same moment.
	transitory, err := tbl.Insert(MappingTCP, 0x0a000001, 5000, 0x05060708, 80)
	require.NoError(t, err)
	established, err := tbl.Insert(MappingTCP, 0x0a000002, 5001, 0x05060709, 80)
	require.NoError(t, err)
	_, ok := tbl.LookupInternal(MappingTCP, 0x0a000002, 5001, 0x05060709, 80, TCPFlags{ACK: true})
	require.True(t, ok)

	clock.BlockUntil(1)
	clock.Advance(DefaultTCPTransitoryTimeout + reapInterval)

	require.Eventually(t, func() bool {
		snap := tbl.Snapshot()
		if len(snap) != 1 {
			return false
		}
		return snap[0].ExtPort == established.ExtPort && snap[0].ExtPort != transitory.ExtPort
	}, time.Second, time.Millisecond)
}

func TestReaper_WalksFullTableEveryTick(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	tbl := newTestTable(t, clock)

	// Two mappings expire on the same tick; the reaper must remove both,
	// not stop after the first.
	_, err := tbl.Insert(MappingICMP, 1, 1, 0, 0)
	require.NoError(t, err)
	_, err = tbl.Insert(MappingICMP, 2, 2, 0, 0)
	require.NoError(t, err)

	clock.BlockUntil(1)
	clock.Advance(DefaultICMPQueryTimeout + reapInterval)

	require.Eventually(t, func() bool {
		return len(tbl.Snapshot()) == 0
	}, time.Second, time.Millisecond)
}
