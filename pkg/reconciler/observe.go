package reconciler

import (
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// Observe enumerates kernel links and builds the observed RIB, deriving
// each link's Kind and kind-specific properties from its netlink
// attributes per §6's attribute table.
func Observe() (*RIB, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("reconciler: list links: %w", err)
	}

	byIndex := make(map[int]netlink.Link, len(links))
	for _, l := range links {
		byIndex[l.Attrs().Index] = l
	}

	rib := NewRIB()
	for _, link := range links {
		spec := deriveSpec(link)
		if err := rib.AddInterface(spec); err != nil {
			return nil, err
		}

		masterIdx := link.Attrs().MasterIndex
		if masterIdx > 0 {
			if master, ok := byIndex[masterIdx]; ok {
				rib.SetAssociation(spec.Name, master.Attrs().Name)
			}
		}
	}
	return rib, nil
}

func deriveSpec(link netlink.Link) InterfaceSpec {
	spec := InterfaceSpec{
		Name:  link.Attrs().Name,
		Kind:  KindOther,
		Admin: adminStateOf(link),
	}

	switch l := link.(type) {
	case *netlink.Bridge:
		spec.Kind = KindBridge
		if l.VlanFiltering != nil {
			spec.Bridge.VlanFiltering = *l.VlanFiltering
		}
		if l.VlanProtocol != nil {
			spec.Bridge.VlanProtocol = uint16(*l.VlanProtocol)
		}
	case *netlink.Vrf:
		spec.Kind = KindVrf
		spec.Vrf.TableId = l.Table
	case *netlink.Vxlan:
		spec.Kind = KindVtep
		spec.Vtep.Vni = uint32(l.VxlanId)
		spec.Vtep.Ttl = uint8(l.TTL)
		if l.Port != 0 {
			spec.Vtep.Port = uint16(l.Port)
		}
		if addr, ok := netip.AddrFromSlice(l.SrcAddr); ok {
			spec.Vtep.Local = addr.Unmap()
		}
	}
	return spec
}

func adminStateOf(link netlink.Link) AdminState {
	switch link.Attrs().OperState {
	case netlink.OperUp:
		return AdminUp
	case netlink.OperDown:
		return AdminDown
	default:
		return AdminUnknown
	}
}
