package resolver

import (
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/stretchr/testify/require"
)

func mustDiscriminant(t *testing.T, vni uint32) gwtypes.VpcDiscriminant {
	t.Helper()
	d, err := gwtypes.NewVni(vni)
	require.NoError(t, err)
	return d
}

func TestTablesResolvesDistinctPeerings(t *testing.T) {
	tables := NewTables()
	src := mustDiscriminant(t, 10)
	vpcA := mustDiscriminant(t, 20)
	vpcB := mustDiscriminant(t, 30)

	tables.Insert(src, gwtypes.MustPrefix("10.0.1.0/24"), vpcA)
	tables.Insert(src, gwtypes.MustPrefix("10.0.2.0/24"), vpcB)

	dst, found, ambiguous := tables.Lookup(src, gwtypes.MustPrefix("10.0.1.0/24").Addr())
	require.True(t, found)
	require.False(t, ambiguous)
	require.Equal(t, vpcA.Vni(), dst.Vni())

	_, found, _ = tables.Lookup(src, gwtypes.MustPrefix("10.0.9.0/24").Addr())
	require.False(t, found, "address outside every exposed prefix is not found")
}

func TestTablesMarksOverlappingPeeringsAmbiguous(t *testing.T) {
	tables := NewTables()
	src := mustDiscriminant(t, 10)
	vpcA := mustDiscriminant(t, 20)
	vpcB := mustDiscriminant(t, 30)

	tables.Insert(src, gwtypes.MustPrefix("10.0.0.0/16"), vpcA)
	tables.Insert(src, gwtypes.MustPrefix("10.0.1.0/24"), vpcB)

	addrInOverlap := gwtypes.MustPrefix("10.0.1.0/24").Addr()
	_, found, ambiguous := tables.Lookup(src, addrInOverlap)
	require.True(t, found)
	require.True(t, ambiguous, "overlapping peerings with different owners must not pick one arbitrarily")

	addrOutsideOverlap := gwtypes.MustPrefix("10.0.2.0/24").Addr()
	dst, found, ambiguous := tables.Lookup(src, addrOutsideOverlap)
	require.True(t, found)
	require.True(t, ambiguous, "the whole colliding /16 entry is marked ambiguous, not just the overlapping /24")
	require.Equal(t, gwtypes.VpcDiscriminant{}, dst)
}

func TestTablesRetroactivelyMarksPreviouslyDistinctPrefixAmbiguous(t *testing.T) {
	tables := NewTables()
	src := mustDiscriminant(t, 10)
	vpcA := mustDiscriminant(t, 20)
	vpcB := mustDiscriminant(t, 30)

	pfx := gwtypes.MustPrefix("10.0.1.0/24")
	tables.Insert(src, pfx, vpcA)

	dst, found, ambiguous := tables.Lookup(src, pfx.Addr())
	require.True(t, found)
	require.False(t, ambiguous)
	require.Equal(t, vpcA.Vni(), dst.Vni())

	tables.Insert(src, pfx, vpcB)

	_, found, ambiguous = tables.Lookup(src, pfx.Addr())
	require.True(t, found)
	require.True(t, ambiguous, "a re-exposed prefix with a conflicting owner poisons the earlier entry too")
}

func TestTablesKeepsDifferentSourceVpcsIndependent(t *testing.T) {
	tables := NewTables()
	srcOne := mustDiscriminant(t, 10)
	srcTwo := mustDiscriminant(t, 11)
	vpcA := mustDiscriminant(t, 20)

	tables.Insert(srcOne, gwtypes.MustPrefix("10.0.1.0/24"), vpcA)

	_, found, _ := tables.Lookup(srcTwo, gwtypes.MustPrefix("10.0.1.0/24").Addr())
	require.False(t, found, "a peering visible from one source VPC is invisible from another")
}

func TestTablesRemoveDropsExactPrefix(t *testing.T) {
	tables := NewTables()
	src := mustDiscriminant(t, 10)
	vpcA := mustDiscriminant(t, 20)
	pfx := gwtypes.MustPrefix("10.0.1.0/24")

	tables.Insert(src, pfx, vpcA)
	tables.Remove(src, pfx)

	_, found, _ := tables.Lookup(src, pfx.Addr())
	require.False(t, found)
}
