package iface

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTable_LookupAndByIP(t *testing.T) {
	t.Parallel()
	tbl, err := New([]Interface{
		{Name: "eth0", MAC: [6]byte{1, 2, 3, 4, 5, 6}, IP: 0x0a000101},
		{Name: "eth1", MAC: [6]byte{1, 2, 3, 4, 5, 7}, IP: 0x0a000201},
	})
	require.NoError(t, err)

	i, ok := tbl.Lookup("eth0")
	require.True(t, ok)
	require.Equal(t, uint32(0x0a000101), i.IP)

	_, ok = tbl.Lookup("eth9")
	require.False(t, ok)

	i, ok = tbl.ByIP(0x0a000201)
	require.True(t, ok)
	require.Equal(t, "eth1", i.Name)

	require.Len(t, tbl.All(), 2)
}

func TestNew_RejectsBadName(t *testing.T) {
	t.Parallel()
	_, err := New([]Interface{{Name: "", IP: 1}})
	require.Error(t, err)
}
