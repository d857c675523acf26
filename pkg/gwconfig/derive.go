package gwconfig

import (
	"fmt"
	"math/big"
	"net/netip"

	"github.com/hedgehog/gwcore/pkg/gwerr"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/nat"
	"github.com/hedgehog/gwcore/pkg/reconciler"
	"github.com/hedgehog/gwcore/pkg/resolver"
)

// maxPoolEnumeration bounds how many individual addresses derive will
// enumerate out of an as_range prefix set when building a stateful
// masquerade pool. Tenant NAT pools are expected to be a handful of
// addresses at most; a much larger as_range is very likely a
// misconfiguration rather than an intentionally huge pool.
const maxPoolEnumeration = 1 << 16

// VrfRouting is the derived per-VPC routing configuration pkg/frr renders
// into the textual configuration pushed to the routing daemon: the
// prefixes a tenant VRF imports from and exports to the underlay EVPN
// address-family.
type VrfRouting struct {
	VpcName          string
	Vni              uint32
	TableId          uint32
	ImportPrefixList []gwtypes.Prefix
	ExportPrefixList []gwtypes.Prefix
	RouteMapName     string
}

// VpcPair names a directed VPC-to-VPC relationship, used by pkg/stats to
// know which peering counters should exist after a configuration apply.
type VpcPair struct {
	Src gwtypes.VpcDiscriminant
	Dst gwtypes.VpcDiscriminant
}

// Internal is the fully derived configuration built from an ExternalConfig:
// everything pkg/nat, pkg/resolver, pkg/pipeline and pkg/reconciler consume
// directly, plus the routing metadata pkg/frr renders.
type Internal struct {
	Nat      *nat.Tables
	Pools    *nat.PoolTables
	Resolver *resolver.Tables
	Rib      *reconciler.RIB
	Routing  []VrfRouting
	Underlay UnderlayVrf

	// VpcNames and Peerings name the current set of VPCs and directed
	// VPC pairs, consulted by pkg/stats on every apply to zero counters
	// for entities that no longer exist.
	VpcNames map[gwtypes.VpcDiscriminant]string
	Peerings []VpcPair
}

// Derive builds the Internal configuration from a validated ExternalConfig.
// Callers must run Validate first; Derive re-validates cross-references
// that only become checkable once VPCs and peerings are resolved against
// each other (dangling remote_id, duplicate derived interface names).
func Derive(cfg ExternalConfig) (*Internal, error) {
	byId := make(map[uint64]VpcEntry, len(cfg.Overlay.VpcTable))
	for _, vpc := range cfg.Overlay.VpcTable {
		byId[vpc.Id] = vpc
	}
	byName := make(map[string]PeeringEntry, len(cfg.Overlay.PeeringTable))
	for _, p := range cfg.Overlay.PeeringTable {
		byName[p.Name] = p
	}

	in := &Internal{
		Nat:      nat.NewTables(),
		Pools:    nat.NewPoolTables(),
		Resolver: resolver.NewTables(),
		Rib:      reconciler.NewRIB(),
		Underlay: cfg.Underlay.Vrf,
		VpcNames: make(map[gwtypes.VpcDiscriminant]string, len(cfg.Overlay.VpcTable)),
	}

	reservations := collectPortReservations(cfg.Overlay.VpcTable, byName)

	ifaceNames := make(map[string]string) // name -> owning vpc, for duplicate detection
	tableIds := make(map[uint32]string)   // table id -> owning vpc

	for _, vpc := range cfg.Overlay.VpcTable {
		srcVni, err := gwtypes.NewVni(vpc.Vni)
		if err != nil {
			return nil, &gwerr.InvalidConfig{Field: fmt.Sprintf("overlay.vpc_table[%s].vni", vpc.Name), Reason: err.Error()}
		}

		if err := deriveRib(in.Rib, cfg, vpc, ifaceNames, tableIds); err != nil {
			return nil, err
		}
		in.VpcNames[srcVni] = vpc.Name

		in.Routing = append(in.Routing, VrfRouting{
			VpcName:      vpc.Name,
			Vni:          vpc.Vni,
			TableId:      vpc.Vni,
			RouteMapName: fmt.Sprintf("rm-%s", vpc.Name),
		})
		routing := &in.Routing[len(in.Routing)-1]

		natTable := in.Nat.Table(srcVni)

		for _, peeringName := range vpc.Peerings {
			peering, ok := byName[peeringName]
			if !ok {
				return nil, &gwerr.InvalidConfig{
					Field:  fmt.Sprintf("overlay.vpc_table[%s].peerings", vpc.Name),
					Reason: fmt.Sprintf("peering %q not found in peering_table", peeringName),
				}
			}
			remote, ok := byId[peering.RemoteId]
			if !ok {
				return nil, &gwerr.InvalidConfig{
					Field:  fmt.Sprintf("overlay.peering_table[%s].remote_id", peeringName),
					Reason: fmt.Sprintf("no vpc with id %d", peering.RemoteId),
				}
			}
			dstVni, err := gwtypes.NewVni(remote.Vni)
			if err != nil {
				return nil, &gwerr.InvalidConfig{Field: fmt.Sprintf("overlay.vpc_table[%s].vni", remote.Name), Reason: err.Error()}
			}

			if err := deriveOutbound(in, natTable, srcVni, dstVni, peering.LocalManifest, reservations); err != nil {
				return nil, err
			}
			if err := deriveInbound(in, srcVni, dstVni, peering.RemoteManifest, routing); err != nil {
				return nil, err
			}
			in.Peerings = append(in.Peerings, VpcPair{Src: srcVni, Dst: dstVni})
		}
	}

	return in, nil
}

// deriveRib adds the bridge/vrf/vtep interfaces and associations one VPC
// contributes to the required RIB, per §4.I's naming/association shape
// (scenario 5: vtepN -> brN -> vrfN).
func deriveRib(rib *reconciler.RIB, cfg ExternalConfig, vpc VpcEntry, ifaceNames map[string]string, tableIds map[uint32]string) error {
	vrfName := fmt.Sprintf("vrf%d", vpc.Vni)
	brName := fmt.Sprintf("br%d", vpc.Vni)

	if owner, ok := tableIds[vpc.Vni]; ok && owner != vpc.Name {
		return &gwerr.InvalidConfig{Field: fmt.Sprintf("overlay.vpc_table[%s]", vpc.Name), Reason: fmt.Sprintf("route table id %d already used by %q", vpc.Vni, owner)}
	}
	tableIds[vpc.Vni] = vpc.Name

	for _, name := range []string{vrfName, brName} {
		if owner, ok := ifaceNames[name]; ok && owner != vpc.Name {
			return &gwerr.InvalidConfig{Field: fmt.Sprintf("overlay.vpc_table[%s]", vpc.Name), Reason: fmt.Sprintf("derived interface name %q collides with %q", name, owner)}
		}
		ifaceNames[name] = vpc.Name
	}

	if err := rib.AddInterface(reconciler.InterfaceSpec{
		Name:  vrfName,
		Kind:  reconciler.KindVrf,
		Admin: reconciler.AdminUp,
		Vrf:   reconciler.VrfProperties{TableId: vpc.Vni},
	}); err != nil {
		return fmt.Errorf("gwconfig: %w", err)
	}
	if err := rib.AddInterface(reconciler.InterfaceSpec{
		Name:  brName,
		Kind:  reconciler.KindBridge,
		Admin: reconciler.AdminUp,
		Bridge: reconciler.BridgeProperties{VlanFiltering: false, VlanProtocol: 0x8100},
	}); err != nil {
		return fmt.Errorf("gwconfig: %w", err)
	}
	rib.SetAssociation(brName, vrfName)

	if cfg.Underlay.Vtep != nil {
		vtepName := fmt.Sprintf("vtep%d", vpc.Vni)
		if owner, ok := ifaceNames[vtepName]; ok && owner != vpc.Name {
			return &gwerr.InvalidConfig{Field: fmt.Sprintf("overlay.vpc_table[%s]", vpc.Name), Reason: fmt.Sprintf("derived interface name %q collides with %q", vtepName, owner)}
		}
		ifaceNames[vtepName] = vpc.Name

		ttl := cfg.Underlay.Vtep.Ttl
		if ttl == 0 {
			ttl = DefaultVtepTtl
		}
		if err := rib.AddInterface(reconciler.InterfaceSpec{
			Name:  vtepName,
			Kind:  reconciler.KindVtep,
			Admin: reconciler.AdminUp,
			Vtep: reconciler.VtepProperties{
				Vni:   vpc.Vni,
				Local: cfg.Underlay.Vtep.LocalIpv4,
				Ttl:   ttl,
			},
		}); err != nil {
			return fmt.Errorf("gwconfig: %w", err)
		}
		rib.SetAssociation(vtepName, brName)
	}

	return nil
}

// deriveOutbound handles a peering's local_manifest: the addresses this
// VPC exposes, and the translation its own traffic undergoes when headed
// toward the peer (stateless 1:1 or stateful masquerade).
func deriveOutbound(in *Internal, natTable *nat.PerVpcTable, srcVni, dstVni gwtypes.VpcDiscriminant, manifest Manifest, reservations []portReservation) error {
	for _, expose := range manifest.Exposes {
		if expose.Default {
			continue // a default expose carries no explicit translation
		}
		sourcePrefixes := resolver.CollapseExposes(expose.Ips, expose.Nots)
		if len(sourcePrefixes) == 0 {
			continue
		}

		switch expose.Nat.Mode {
		case NatModeStateless:
			targetPrefixes := resolver.CollapseExposes(expose.AsRange, expose.NotAs)
			if err := installStatelessSrc(natTable, srcVni, dstVni, sourcePrefixes, targetPrefixes); err != nil {
				return err
			}
		case NatModeStateful:
			addrs, err := enumerateAddresses(resolver.CollapseExposes(expose.AsRange, expose.NotAs))
			if err != nil {
				return err
			}
			reserved := reservedPortsFor(addrs, reservations)
			in.Pools.Set(nat.PoolKey{SrcVpc: srcVni, DstVpc: dstVni}, nat.NewPool(addrs, reserved))
		}
	}
	return nil
}

// deriveInbound handles a peering's remote_manifest: the addresses the
// peer exposes, which feeds the destination-VPC resolver (keyed on the
// externally visible as_range addresses actually seen in dst_ip) and the
// destination-NAT table that rewrites them down to the peer's real
// addresses before IP forwarding.
func deriveInbound(in *Internal, srcVni, dstVni gwtypes.VpcDiscriminant, manifest Manifest, routing *VrfRouting) error {
	for _, expose := range manifest.Exposes {
		if expose.Default {
			in.Resolver.Insert(srcVni, gwtypes.MustPrefix("0.0.0.0/0"), dstVni)
			in.Resolver.Insert(srcVni, gwtypes.MustPrefix("::/0"), dstVni)
			continue
		}
		realPrefixes := resolver.CollapseExposes(expose.Ips, expose.Nots)
		if len(realPrefixes) == 0 {
			continue
		}

		visiblePrefixes := realPrefixes
		if expose.Nat.Mode == NatModeStateless && len(expose.AsRange) > 0 {
			visiblePrefixes = resolver.CollapseExposes(expose.AsRange, expose.NotAs)
			if err := installStatelessDst(in.Nat.Table(srcVni), visiblePrefixes, realPrefixes); err != nil {
				return err
			}
		}

		for _, p := range visiblePrefixes {
			in.Resolver.Insert(srcVni, p, dstVni)
		}
		routing.ImportPrefixList = append(routing.ImportPrefixList, visiblePrefixes...)
		routing.ExportPrefixList = append(routing.ExportPrefixList, realPrefixes...)
	}
	return nil
}

// installStatelessSrc distributes targetPrefixes across sourcePrefixes in
// order so the Nth address of the concatenated source space maps to the
// Nth address of the concatenated target space, per §4.C/§8's stateless
// NAT invariant.
func installStatelessSrc(table *nat.PerVpcTable, srcVni, dstVni gwtypes.VpcDiscriminant, sourcePrefixes, targetPrefixes []gwtypes.Prefix) error {
	cursor := newRangeCursor(targetPrefixes)
	for _, src := range sourcePrefixes {
		need := src.Cardinality()
		for need.Sign() > 0 {
			r, n, err := cursor.take(need)
			if err != nil {
				return &gwerr.InternalFailure{Detail: err.Error()}
			}
			if err := table.AddSrcRange(src, dstVni, r); err != nil {
				return &gwerr.InternalFailure{Detail: err.Error()}
			}
			need = new(big.Int).Sub(need, n)
		}
	}
	return nil
}

// installStatelessDst is installStatelessSrc's destination-side mirror:
// the visible (as_range) prefixes are the LPM keys, the real (ips)
// prefixes the target addresses translated into before forwarding.
func installStatelessDst(table *nat.PerVpcTable, visiblePrefixes, realPrefixes []gwtypes.Prefix) error {
	cursor := newRangeCursor(realPrefixes)
	for _, visible := range visiblePrefixes {
		need := visible.Cardinality()
		for need.Sign() > 0 {
			r, n, err := cursor.take(need)
			if err != nil {
				return &gwerr.InternalFailure{Detail: err.Error()}
			}
			if err := table.AddDstRange(visible, r); err != nil {
				return &gwerr.InternalFailure{Detail: err.Error()}
			}
			need = new(big.Int).Sub(need, n)
		}
	}
	return nil
}

// rangeCursor walks a sequence of prefixes' address ranges in order,
// handing out sub-ranges of a requested size regardless of whether the
// boundary falls inside a single source prefix.
type rangeCursor struct {
	ranges []gwtypes.IpRange
	idx    int
	offset *big.Int // addresses already consumed from ranges[idx]
}

func newRangeCursor(prefixes []gwtypes.Prefix) *rangeCursor {
	ranges := make([]gwtypes.IpRange, len(prefixes))
	for i, p := range prefixes {
		ranges[i] = gwtypes.RangeFromPrefix(p)
	}
	return &rangeCursor{ranges: ranges, offset: big.NewInt(0)}
}

// take returns up to `want` addresses as a single contiguous IpRange
// drawn from the current donor range (never crossing into the next
// range, so the caller's loop may need several calls to satisfy a large
// want), the count actually returned, and an error if the cursor is
// exhausted before `want` could be satisfied at all.
func (c *rangeCursor) take(want *big.Int) (gwtypes.IpRange, *big.Int, error) {
	for {
		if c.idx >= len(c.ranges) {
			return gwtypes.IpRange{}, nil, fmt.Errorf("gwconfig: target address space exhausted")
		}
		r := c.ranges[c.idx]
		remaining := new(big.Int).Sub(r.Cardinality(), c.offset)
		if remaining.Sign() <= 0 {
			c.idx++
			c.offset = big.NewInt(0)
			continue
		}
		take := remaining
		if want.Cmp(remaining) < 0 {
			take = want
		}
		start, err := r.NthAddress(c.offset)
		if err != nil {
			return gwtypes.IpRange{}, nil, err
		}
		lastOffset := new(big.Int).Add(c.offset, take)
		lastOffset.Sub(lastOffset, big.NewInt(1))
		end, err := r.NthAddress(lastOffset)
		if err != nil {
			return gwtypes.IpRange{}, nil, err
		}
		out, err := gwtypes.NewIpRange(start, end)
		if err != nil {
			return gwtypes.IpRange{}, nil, err
		}
		c.offset.Add(c.offset, take)
		return out, take, nil
	}
}

// portReservation records a port range carved out of addresses within
// prefix by some expose's explicit ports field, excluded from any
// stateful masquerade pool built over an overlapping address.
type portReservation struct {
	prefix gwtypes.Prefix
	ports  gwtypes.PortRange
}

func collectPortReservations(vpcs []VpcEntry, peerings map[string]PeeringEntry) []portReservation {
	var out []portReservation
	seen := make(map[string]bool)
	collect := func(m Manifest) {
		for _, expose := range m.Exposes {
			if expose.Ports == nil || expose.Default {
				continue
			}
			for _, prefix := range resolver.CollapseExposes(expose.Ips, expose.Nots) {
				out = append(out, portReservation{prefix: prefix, ports: *expose.Ports})
			}
		}
	}
	for _, vpc := range vpcs {
		for _, name := range vpc.Peerings {
			if seen[name] {
				continue
			}
			seen[name] = true
			p, ok := peerings[name]
			if !ok {
				continue
			}
			collect(p.LocalManifest)
			collect(p.RemoteManifest)
		}
	}
	return out
}

func reservedPortsFor(addrs []netip.Addr, reservations []portReservation) map[netip.Addr][]gwtypes.PortRange {
	if len(reservations) == 0 {
		return nil
	}
	out := make(map[netip.Addr][]gwtypes.PortRange)
	for _, addr := range addrs {
		for _, res := range reservations {
			if res.prefix.Contains(addr) {
				out[addr] = append(out[addr], res.ports)
			}
		}
	}
	return out
}

// enumerateAddresses expands a collapsed prefix set into individual
// addresses for pool construction, bounded by maxPoolEnumeration.
func enumerateAddresses(prefixes []gwtypes.Prefix) ([]netip.Addr, error) {
	var out []netip.Addr
	for _, p := range prefixes {
		card := p.Cardinality()
		if !card.IsInt64() || card.Int64() > maxPoolEnumeration {
			return nil, &gwerr.InvalidConfig{Field: "as_range", Reason: fmt.Sprintf("stateful pool prefix %s is too large to enumerate", p)}
		}
		n := int(card.Int64())
		for i := 0; i < n; i++ {
			addr, err := p.NthAddress(big.NewInt(int64(i)))
			if err != nil {
				return nil, err
			}
			out = append(out, addr)
		}
		if len(out) > maxPoolEnumeration {
			return nil, &gwerr.InvalidConfig{Field: "as_range", Reason: "stateful pool address space too large to enumerate"}
		}
	}
	return out, nil
}
