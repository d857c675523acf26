package flow

import (
	"net/netip"
	"testing"
	"time"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, srcPort uint16) Key {
	t.Helper()
	vni, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	return Key{
		SrcVpc:   vni,
		SrcAddr:  netip.MustParseAddr("10.0.0.1"),
		DstAddr:  netip.MustParseAddr("10.0.0.2"),
		SrcPort:  srcPort,
		DstPort:  443,
		Protocol: gwtypes.ProtocolTCP,
	}
}

func TestInfoStatusTransitionsAreMonotonic(t *testing.T) {
	info := New(time.Now().Add(time.Minute))
	require.Equal(t, StatusActive, info.Status())

	require.False(t, info.MarkRemoved(), "cannot skip straight to removed")
	require.True(t, info.MarkExpired())
	require.Equal(t, StatusExpired, info.Status())
	require.False(t, info.MarkExpired(), "cannot expire twice")

	require.True(t, info.MarkRemoved())
	require.Equal(t, StatusRemoved, info.Status())
}

func TestInfoExtendRefusesOnceExpired(t *testing.T) {
	info := New(time.Now().Add(time.Second))
	require.True(t, info.Extend(time.Minute))
	require.True(t, info.ExpiresAt().After(time.Now().Add(30*time.Second)))

	info.MarkExpired()
	require.False(t, info.Extend(time.Hour))
}

func TestCloseShrinksButNeverExtendsExpiry(t *testing.T) {
	info := New(time.Now().Add(time.Hour))
	require.True(t, info.Close(30*time.Second))
	require.True(t, info.ExpiresAt().Before(time.Now().Add(time.Minute)))

	shrunk := info.ExpiresAt()
	require.True(t, info.Close(time.Hour))
	require.Equal(t, shrunk, info.ExpiresAt(), "close never grants more life than the flow already had")
}

func TestRelatedPairResolvesEachOther(t *testing.T) {
	a, b := RelatedPair(time.Now().Add(time.Minute))
	other, ok := a.Related()
	require.True(t, ok)
	require.Same(t, b, other)

	other, ok = b.Related()
	require.True(t, ok)
	require.Same(t, a, other)
}

func TestTableInsertLookupRemove(t *testing.T) {
	table := NewTable()
	k := testKey(t, 1234)
	info := New(time.Now().Add(time.Minute))

	table.Insert(k, info)
	got, ok := table.Lookup(k)
	require.True(t, ok)
	require.Same(t, info, got)

	table.Remove(k)
	_, ok = table.Lookup(k)
	require.False(t, ok)
}

func TestTableScavengeRemovesDeadFlows(t *testing.T) {
	table := NewTable()
	k := testKey(t, 5555)
	info := New(time.Now().Add(-time.Second))
	table.Insert(k, info)

	require.Equal(t, 0, table.Scavenge(time.Now()))
	require.Equal(t, StatusExpired, info.Status())

	require.Equal(t, 0, table.Scavenge(time.Now()))
	require.Equal(t, StatusRemoved, info.Status())

	require.Equal(t, 1, table.Scavenge(time.Now()))
	require.Equal(t, 0, table.Len())
}

func TestTableScavengeLeavesActiveFlowsAlone(t *testing.T) {
	table := NewTable()
	k := testKey(t, 6666)
	info := New(time.Now().Add(time.Hour))
	table.Insert(k, info)

	table.Scavenge(time.Now())
	require.Equal(t, StatusActive, info.Status())
	require.Equal(t, 1, table.Len())
}
