package nat

import (
	"net/netip"
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/stretchr/testify/require"
)

func TestPortFwTableAddAndLookup(t *testing.T) {
	tbl := NewPortFwTable()
	key := PortFwKey{
		SrcVpc: mustVni(t, 2000),
		DstIp:  netip.MustParseAddr("70.71.72.73"),
		Proto:  gwtypes.ProtocolTCP,
	}
	entry, err := NewPortFwEntry(
		key, mustVni(t, 3000), netip.MustParseAddr("192.168.1.1"),
		gwtypes.PortRange{Start: 3022, End: 3022},
		gwtypes.PortRange{Start: 22, End: 22},
		0, 0,
	)
	require.NoError(t, err)
	tbl.Add(entry)

	found, ok := tbl.Lookup(key, 3022)
	require.True(t, ok)
	addr, port, ok := found.Translate(3022)
	require.True(t, ok)
	require.Equal(t, netip.MustParseAddr("192.168.1.1"), addr)
	require.EqualValues(t, 22, port)

	_, ok = tbl.Lookup(key, 3023)
	require.False(t, ok)
}

func TestPortFwTableAddIsIdempotentPerKeyDistinctPerPort(t *testing.T) {
	tbl := NewPortFwTable()
	key := PortFwKey{SrcVpc: mustVni(t, 2000), DstIp: netip.MustParseAddr("70.71.72.73"), Proto: gwtypes.ProtocolTCP}

	entry1, err := NewPortFwEntry(key, mustVni(t, 3000), netip.MustParseAddr("192.168.1.1"),
		gwtypes.PortRange{Start: 3022, End: 3022}, gwtypes.PortRange{Start: 22, End: 22}, 0, 0)
	require.NoError(t, err)
	tbl.Add(entry1)
	tbl.Add(entry1)
	require.Equal(t, 1, tbl.Len())

	entry2, err := NewPortFwEntry(key, mustVni(t, 4000), netip.MustParseAddr("192.168.1.2"),
		gwtypes.PortRange{Start: 3023, End: 3023}, gwtypes.PortRange{Start: 23, End: 23}, 0, 0)
	require.NoError(t, err)
	tbl.Add(entry2)
	require.Equal(t, 2, tbl.Len())
}

func TestPortFwEntryRejectsSameVpc(t *testing.T) {
	key := PortFwKey{SrcVpc: mustVni(t, 2000), DstIp: netip.MustParseAddr("70.71.72.73"), Proto: gwtypes.ProtocolUDP}
	_, err := NewPortFwEntry(key, mustVni(t, 2000), netip.MustParseAddr("192.168.1.1"),
		gwtypes.PortRange{Start: 22, End: 22}, gwtypes.PortRange{Start: 22, End: 22}, 0, 0)
	require.Error(t, err)
}

func TestPortFwEntryRejectsMismatchedFamilies(t *testing.T) {
	key := PortFwKey{SrcVpc: mustVni(t, 2000), DstIp: netip.MustParseAddr("70.71.72.73"), Proto: gwtypes.ProtocolTCP}
	_, err := NewPortFwEntry(key, mustVni(t, 3000), netip.MustParseAddr("2001:db8::1"),
		gwtypes.PortRange{Start: 22, End: 22}, gwtypes.PortRange{Start: 22, End: 22}, 0, 0)
	require.Error(t, err)
}

func TestPortFwTableReplaceDropsStaleRules(t *testing.T) {
	tbl := NewPortFwTable()
	key := PortFwKey{SrcVpc: mustVni(t, 2000), DstIp: netip.MustParseAddr("70.71.72.73"), Proto: gwtypes.ProtocolTCP}
	entry, err := NewPortFwEntry(key, mustVni(t, 3000), netip.MustParseAddr("192.168.1.1"),
		gwtypes.PortRange{Start: 22, End: 22}, gwtypes.PortRange{Start: 22, End: 22}, 0, 0)
	require.NoError(t, err)
	tbl.Add(entry)
	require.Equal(t, 1, tbl.Len())

	tbl.Replace(nil)
	require.True(t, tbl.IsEmpty())
}
