package routing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ip(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

func TestTable_LongestPrefixMatch_PrefersMoreSpecific(t *testing.T) {
	t.Parallel()
	rt := New([]Entry{
		{Destination: ip(10, 0, 0, 0), Mask: ip(255, 0, 0, 0), Gateway: ip(10, 0, 0, 1), Interface: "eth0"},
		{Destination: ip(10, 0, 1, 0), Mask: ip(255, 255, 255, 0), Gateway: ip(10, 0, 1, 1), Interface: "eth1"},
	})

	e := rt.LongestPrefixMatch(ip(10, 0, 1, 5))
	require.Equal(t, "eth1", e.Interface)
	require.False(t, e.IsNoRoute())

	e = rt.LongestPrefixMatch(ip(10, 0, 2, 5))
	require.Equal(t, "eth0", e.Interface)
}

func TestTable_LongestPrefixMatch_NoMatch(t *testing.T) {
	t.Parallel()
	rt := New([]Entry{
		{Destination: ip(10, 0, 0, 0), Mask: ip(255, 0, 0, 0), Gateway: ip(10, 0, 0, 1), Interface: "eth0"},
	})
	e := rt.LongestPrefixMatch(ip(192, 168, 1, 1))
	require.True(t, e.IsNoRoute())
}

func TestTable_LongestPrefixMatch_FirstMatchBreaksTies(t *testing.T) {
	t.Parallel()
	rt := New([]Entry{
		{Destination: ip(10, 0, 0, 0), Mask: ip(255, 0, 0, 0), Gateway: ip(10, 0, 0, 1), Interface: "first"},
		{Destination: ip(10, 0, 0, 0), Mask: ip(255, 0, 0, 0), Gateway: ip(10, 0, 0, 2), Interface: "second"},
	})
	e := rt.LongestPrefixMatch(ip(10, 1, 1, 1))
	require.Equal(t, "first", e.Interface)
}

func TestTable_Entries_IsDefensiveCopy(t *testing.T) {
	t.Parallel()
	rt := New([]Entry{{Destination: ip(10, 0, 0, 0), Mask: ip(255, 0, 0, 0), Gateway: ip(10, 0, 0, 1), Interface: "eth0"}})
	cp := rt.Entries()
	cp[0].Interface = "mutated"
	e := rt.LongestPrefixMatch(ip(10, 0, 0, 5))
	require.Equal(t, "eth0", e.Interface)
}
