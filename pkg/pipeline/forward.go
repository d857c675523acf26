package pipeline

import (
	"iter"
	"net/netip"
	"sync"

	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/lpm"
)

// Route is the result of an IP-forward lookup: the output interface and
// the next hop to reach it through (the remote VTEP's underlay address,
// for traffic leaving toward another rack).
type Route struct {
	Oif     string
	NextHop netip.Addr
}

type vrfTable struct {
	v4 *lpm.Trie[Route]
	v6 *lpm.Trie[Route]
}

func newVrfTable() *vrfTable {
	return &vrfTable{v4: lpm.NewTrieV4[Route](), v6: lpm.NewTrieV6[Route]()}
}

func (t *vrfTable) trieFor(net gwtypes.Net) *lpm.Trie[Route] {
	if net == gwtypes.NetV4 {
		return t.v4
	}
	return t.v6
}

// RouteTables holds one VRF routing table per VPC, derived by
// pkg/gwconfig from a VPC's import/export route policy.
type RouteTables struct {
	mu    sync.RWMutex
	byVpc map[gwtypes.VpcDiscriminant]*vrfTable
}

// NewRouteTables returns an empty set of routing tables.
func NewRouteTables() *RouteTables {
	return &RouteTables{byVpc: make(map[gwtypes.VpcDiscriminant]*vrfTable)}
}

// Set installs route as the forwarding entry for prefix within vpc's VRF.
func (t *RouteTables) Set(vpc gwtypes.VpcDiscriminant, prefix gwtypes.Prefix, route Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	vrf, ok := t.byVpc[vpc]
	if !ok {
		vrf = newVrfTable()
		t.byVpc[vpc] = vrf
	}
	vrf.trieFor(prefix.Net()).Insert(prefix, route)
}

// Lookup finds the most specific route for addr within vpc's VRF.
func (t *RouteTables) Lookup(vpc gwtypes.VpcDiscriminant, addr netip.Addr) (Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	vrf, ok := t.byVpc[vpc]
	if !ok {
		return Route{}, false
	}
	net := gwtypes.NetV4
	if addr.Is6() && !addr.Is4In6() {
		net = gwtypes.NetV6
	}
	_, route, ok := vrf.trieFor(net).Lookup(addr)
	return route, ok
}

// IpForward builds the stage that selects an output interface and next
// hop for a packet already carrying a resolved destination VPC.
func IpForward(routes *RouteTables) Stage {
	return func(in iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet] {
		return func(yield func(*gwpacket.Packet) bool) {
			for pkt := range in {
				if !pkt.IsDone() {
					ipForward(pkt, routes)
				}
				if !yield(pkt) {
					return
				}
			}
		}
	}
}

func ipForward(pkt *gwpacket.Packet, routes *RouteTables) {
	if !pkt.HasDstVpc {
		pkt.SetDone(gwpacket.Unroutable)
		return
	}
	_, dstAddr, ok := packetAddrs(pkt)
	if !ok {
		pkt.SetDone(gwpacket.NotIp)
		return
	}
	route, ok := routes.Lookup(pkt.DstVpc, dstAddr)
	if !ok {
		pkt.SetDone(gwpacket.Unroutable)
		return
	}
	pkt.Oif = route.Oif
	pkt.NextHop = route.NextHop
}
