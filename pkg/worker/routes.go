package worker

import (
	"fmt"
	"net/netip"

	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/pipeline"
	"github.com/vishvananda/netlink"
)

// loadRouteTables reads the kernel FIB the routing daemon programs into
// each tenant VRF's table and assembles the LPM forwarding tables
// pipeline.IpForward consults. It runs once per configuration
// generation, not per packet.
func loadRouteTables(in *gwconfig.Internal) (*pipeline.RouteTables, error) {
	routes := pipeline.NewRouteTables()
	for _, vr := range in.Routing {
		vpc, err := gwtypes.NewVni(vr.Vni)
		if err != nil {
			return nil, fmt.Errorf("worker: routing table for vrf %s: %w", vr.VpcName, err)
		}
		if err := loadVrfRoutes(routes, vpc, vr.TableId, netlink.FAMILY_V4); err != nil {
			return nil, fmt.Errorf("worker: load ipv4 routes for vrf %s: %w", vr.VpcName, err)
		}
		if err := loadVrfRoutes(routes, vpc, vr.TableId, netlink.FAMILY_V6); err != nil {
			return nil, fmt.Errorf("worker: load ipv6 routes for vrf %s: %w", vr.VpcName, err)
		}
	}
	return routes, nil
}

func loadVrfRoutes(routes *pipeline.RouteTables, vpc gwtypes.VpcDiscriminant, tableId uint32, family int) error {
	filter := &netlink.Route{Table: int(tableId)}
	kroutes, err := netlink.RouteListFiltered(family, filter, netlink.RT_FILTER_TABLE)
	if err != nil {
		return err
	}
	for _, r := range kroutes {
		if r.Dst == nil {
			continue
		}
		netPfx, err := netip.ParsePrefix(r.Dst.String())
		if err != nil {
			continue
		}
		prefix, _, err := gwtypes.NewPrefixTolerant(netPfx.Addr(), netPfx.Bits())
		if err != nil {
			continue
		}

		route := pipeline.Route{}
		if link, err := netlink.LinkByIndex(r.LinkIndex); err == nil {
			route.Oif = link.Attrs().Name
		}
		if r.Gw != nil {
			if gw, ok := netip.AddrFromSlice(r.Gw); ok {
				route.NextHop = gw.Unmap()
			}
		}
		routes.Set(vpc, prefix, route)
	}
	return nil
}
