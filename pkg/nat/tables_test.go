package nat

import (
	"math/big"
	"net/netip"
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/stretchr/testify/require"
)

func mustVni(t *testing.T, vni uint32) gwtypes.VpcDiscriminant {
	t.Helper()
	d, err := gwtypes.NewVni(vni)
	require.NoError(t, err)
	return d
}

func TestNatTableValueGetEntryOffsetsIntoRanges(t *testing.T) {
	v := NewNatTableValue()
	v.AddRange(gwtypes.IpRange{
		Start: netip.MustParseAddr("192.168.1.0"),
		End:   netip.MustParseAddr("192.168.1.255"),
	})
	v.AddRange(gwtypes.IpRange{
		Start: netip.MustParseAddr("192.168.2.0"),
		End:   netip.MustParseAddr("192.168.2.255"),
	})

	first, ok := v.GetEntry(big.NewInt(0))
	require.True(t, ok)
	require.Equal(t, netip.MustParseAddr("192.168.1.0"), first)

	secondBlockFirst, ok := v.GetEntry(big.NewInt(256))
	require.True(t, ok)
	require.Equal(t, netip.MustParseAddr("192.168.2.0"), secondBlockFirst)

	_, ok = v.GetEntry(big.NewInt(512))
	require.False(t, ok)
}

func TestNatTableValueMergesContiguousRanges(t *testing.T) {
	v := NewNatTableValue()
	v.AddRange(gwtypes.IpRange{Start: netip.MustParseAddr("10.0.0.0"), End: netip.MustParseAddr("10.0.0.127")})
	v.AddRange(gwtypes.IpRange{Start: netip.MustParseAddr("10.0.0.128"), End: netip.MustParseAddr("10.0.0.255")})
	require.Equal(t, 1, len(v.ranges))
	require.Equal(t, big.NewInt(256).String(), v.Cardinality().String())
}

func TestPerVpcTableFindSrcAndDstMapping(t *testing.T) {
	tbl := NewPerVpcTable()
	dstVpc := mustVni(t, 200)

	require.NoError(t, tbl.AddSrcRange(
		gwtypes.MustPrefix("10.0.0.0/24"), dstVpc,
		gwtypes.IpRange{Start: netip.MustParseAddr("172.16.0.0"), End: netip.MustParseAddr("172.16.0.255")},
	))
	require.NoError(t, tbl.AddDstRange(
		gwtypes.MustPrefix("172.16.1.0/24"),
		gwtypes.IpRange{Start: netip.MustParseAddr("10.1.0.0"), End: netip.MustParseAddr("10.1.0.255")},
	))

	mapped, ok := tbl.FindSrcMapping(netip.MustParseAddr("10.0.0.5"), dstVpc)
	require.True(t, ok)
	require.Equal(t, netip.MustParseAddr("172.16.0.5"), mapped)

	mapped, ok = tbl.FindDstMapping(netip.MustParseAddr("172.16.1.10"))
	require.True(t, ok)
	require.Equal(t, netip.MustParseAddr("10.1.0.10"), mapped)

	_, ok = tbl.FindSrcMapping(netip.MustParseAddr("10.0.0.5"), mustVni(t, 999))
	require.False(t, ok)
}
