package gwconfig

import (
	"net/netip"
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/nat"
	"github.com/stretchr/testify/require"
)

func twoVpcConfig(localExpose, remoteExpose VpcExpose) ExternalConfig {
	return ExternalConfig{
		Underlay: Underlay{
			Vrf: UnderlayVrf{Asn: 65000, RouterId: netip.MustParseAddr("10.0.0.1")},
		},
		Overlay: Overlay{
			VpcTable: []VpcEntry{
				{Name: "blue", Id: 1, Vni: 100, Peerings: []string{"blue-green"}},
				{Name: "green", Id: 2, Vni: 200, Peerings: []string{"blue-green"}},
			},
			PeeringTable: []PeeringEntry{{
				Name:           "blue-green",
				RemoteId:       2,
				LocalManifest:  Manifest{Exposes: []VpcExpose{localExpose}},
				RemoteManifest: Manifest{Exposes: []VpcExpose{remoteExpose}},
			}},
		},
	}
}

func TestDeriveBuildsVrfBridgeInterfaces(t *testing.T) {
	cfg := twoVpcConfig(
		VpcExpose{Default: true},
		VpcExpose{Default: true},
	)
	internal, err := Derive(cfg)
	require.NoError(t, err)

	_, ok := internal.Rib.Interfaces["vrf100"]
	require.True(t, ok)
	_, ok = internal.Rib.Interfaces["br100"]
	require.True(t, ok)
	_, ok = internal.Rib.Interfaces["vrf200"]
	require.True(t, ok)
}

func TestDeriveRejectsDanglingRemoteId(t *testing.T) {
	cfg := twoVpcConfig(VpcExpose{Default: true}, VpcExpose{Default: true})
	cfg.Overlay.PeeringTable[0].RemoteId = 999

	_, err := Derive(cfg)
	require.Error(t, err)
}

func TestDeriveRejectsUnknownPeeringName(t *testing.T) {
	cfg := twoVpcConfig(VpcExpose{Default: true}, VpcExpose{Default: true})
	cfg.Overlay.VpcTable[0].Peerings = []string{"missing"}

	_, err := Derive(cfg)
	require.Error(t, err)
}

func TestDeriveDefaultExposeInsertsCatchAll(t *testing.T) {
	cfg := twoVpcConfig(
		VpcExpose{Default: true},
		VpcExpose{Default: true},
	)
	internal, err := Derive(cfg)
	require.NoError(t, err)

	srcVni, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	dstVni, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	dst, found, ambiguous := internal.Resolver.Lookup(srcVni, netip.MustParseAddr("203.0.113.5"))
	require.True(t, found)
	require.False(t, ambiguous)
	require.Equal(t, dstVni.Vni(), dst.Vni())
}

func TestDeriveStatelessRoundTripsSrcAndDst(t *testing.T) {
	cfg := twoVpcConfig(
		VpcExpose{
			Ips:     []gwtypes.Prefix{gwtypes.MustPrefix("10.0.0.0/24")},
			AsRange: []gwtypes.Prefix{gwtypes.MustPrefix("20.0.0.0/24")},
			Nat:     NatConfig{Mode: NatModeStateless},
		},
		VpcExpose{
			Ips:     []gwtypes.Prefix{gwtypes.MustPrefix("30.0.0.0/24")},
			AsRange: []gwtypes.Prefix{gwtypes.MustPrefix("40.0.0.0/24")},
			Nat:     NatConfig{Mode: NatModeStateless},
		},
	)
	internal, err := Derive(cfg)
	require.NoError(t, err)

	srcVni, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	dstVni, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	table := internal.Nat.Table(srcVni)

	mapped, ok := table.FindSrcMapping(netip.MustParseAddr("10.0.0.5"), dstVni)
	require.True(t, ok)
	require.Equal(t, netip.MustParseAddr("20.0.0.5"), mapped)

	back, ok := table.FindDstMapping(netip.MustParseAddr("40.0.0.7"))
	require.True(t, ok)
	require.Equal(t, netip.MustParseAddr("30.0.0.7"), back)

	dst, found, ambiguous := internal.Resolver.Lookup(srcVni, netip.MustParseAddr("40.0.0.7"))
	require.True(t, found)
	require.False(t, ambiguous)
	require.Equal(t, dstVni.Vni(), dst.Vni())
}

func TestDeriveStatefulBuildsPool(t *testing.T) {
	cfg := twoVpcConfig(
		VpcExpose{
			Ips:     []gwtypes.Prefix{gwtypes.MustPrefix("10.0.0.0/28")},
			AsRange: []gwtypes.Prefix{gwtypes.MustPrefix("20.0.0.0/30")},
			Nat:     NatConfig{Mode: NatModeStateful},
		},
		VpcExpose{Default: true},
	)
	internal, err := Derive(cfg)
	require.NoError(t, err)

	srcVni, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	dstVni, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	pool, ok := internal.Pools.Get(nat.PoolKey{SrcVpc: srcVni, DstVpc: dstVni})
	require.True(t, ok)
	require.NotNil(t, pool)
}

func TestDeriveRejectsHugeStatefulPool(t *testing.T) {
	cfg := twoVpcConfig(
		VpcExpose{
			Ips:     []gwtypes.Prefix{gwtypes.MustPrefix("10.0.0.0/16")},
			AsRange: []gwtypes.Prefix{gwtypes.MustPrefix("20.0.0.0/8")},
			Nat:     NatConfig{Mode: NatModeStateful},
		},
		VpcExpose{Default: true},
	)
	_, err := Derive(cfg)
	require.Error(t, err)
}
