package gwconfig

import (
	"context"
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRenderRoutingIncludesUnderlayAndVrfStanzas(t *testing.T) {
	in := &Internal{
		Underlay: UnderlayVrf{
			Asn:  65000,
			Evpn: DefaultAfEvpn(),
			Ipv4: AfIpv4Unicast{Networks: []gwtypes.Prefix{gwtypes.MustPrefix("10.0.0.0/24")}},
		},
		Routing: []VrfRouting{{
			VpcName:          "blue",
			Vni:              100,
			RouteMapName:     "rm-blue",
			ImportPrefixList: []gwtypes.Prefix{gwtypes.MustPrefix("20.0.0.0/24")},
			ExportPrefixList: []gwtypes.Prefix{gwtypes.MustPrefix("10.0.0.0/24")},
		}},
	}

	rendered := RenderRouting(in)

	require.Contains(t, rendered, "router bgp 65000")
	require.Contains(t, rendered, "advertise-all-vni")
	require.Contains(t, rendered, "network 10.0.0.0/24")
	require.Contains(t, rendered, "vrf vrf100")
	require.Contains(t, rendered, "vni 100")
	require.Contains(t, rendered, "ip prefix-list import-rm-blue permit 20.0.0.0/24")
	require.Contains(t, rendered, "ip prefix-list export-rm-blue permit 10.0.0.0/24")
	require.Contains(t, rendered, "route-map rm-blue permit 10")
}

func TestProcessorRejectsReapplyingSameGeneration(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Put(1, validConfig()))
	require.NoError(t, store.SetCurrent(1))

	p := &Processor{store: store, currentGen: 1, hasCurrent: true, logger: zerolog.Nop()}

	err := p.Apply(context.Background(), 1, validConfig())
	require.Error(t, err)
}

func TestProcessorGetCurrentConfigBeforeApply(t *testing.T) {
	p := NewProcessor(openTestStore(t), nil, nil, nil)
	_, _, ok := p.GetCurrentConfig()
	require.False(t, ok)
	require.Nil(t, p.Snapshot())
}
