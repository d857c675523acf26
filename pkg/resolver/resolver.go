package resolver

import (
	"net/netip"
	"sync"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/lpm"
)

// vpcTable is the per-source-VPC lookup state: one LPM trie per address
// family, mapping a remote-exposed prefix to the VPC discriminant that
// exposed it. A nil value means the prefix is in scope (some peering
// exposed it) but its owner cannot be determined uniquely.
type vpcTable struct {
	v4 *lpm.Trie[*gwtypes.VpcDiscriminant]
	v6 *lpm.Trie[*gwtypes.VpcDiscriminant]
}

func newVpcTable() *vpcTable {
	return &vpcTable{
		v4: lpm.NewTrieV4[*gwtypes.VpcDiscriminant](),
		v6: lpm.NewTrieV6[*gwtypes.VpcDiscriminant](),
	}
}

func (t *vpcTable) trieFor(net gwtypes.Net) *lpm.Trie[*gwtypes.VpcDiscriminant] {
	if net == gwtypes.NetV4 {
		return t.v4
	}
	return t.v6
}

// Tables resolves, for each source VPC, which destination VPC owns a
// given remote address. It is built up one peering at a time via Insert
// and consulted on the packet path via Lookup.
type Tables struct {
	mu       sync.RWMutex
	bySrcVpc map[gwtypes.VpcDiscriminant]*vpcTable
}

// NewTables returns an empty set of resolution tables.
func NewTables() *Tables {
	return &Tables{bySrcVpc: make(map[gwtypes.VpcDiscriminant]*vpcTable)}
}

func (t *Tables) tableFor(src gwtypes.VpcDiscriminant) *vpcTable {
	vt, ok := t.bySrcVpc[src]
	if !ok {
		vt = newVpcTable()
		t.bySrcVpc[src] = vt
	}
	return vt
}

// Insert records that, from src's perspective, prefix is owned by dst.
// If prefix overlaps a previously inserted prefix (of any specificity)
// whose owner differs -- or which is already ambiguous -- both the new
// prefix and every conflicting stored prefix are marked ambiguous
// (retroactively, for prefixes that were previously unambiguous). This
// mirrors collision handling across peerings that independently expose
// overlapping ranges to the same source VPC with different targets.
func (t *Tables) Insert(src gwtypes.VpcDiscriminant, prefix gwtypes.Prefix, dst gwtypes.VpcDiscriminant) {
	t.mu.Lock()
	defer t.mu.Unlock()

	vt := t.tableFor(src)
	trie := vt.trieFor(prefix.Net())

	overlapping := trie.OverlappingWith(prefix)
	ambiguous := false
	for _, e := range overlapping {
		if e.Value == nil || e.Value.Vni() != dst.Vni() {
			ambiguous = true
			break
		}
	}

	if !ambiguous {
		d := dst
		trie.Insert(prefix, &d)
		return
	}

	for _, e := range overlapping {
		trie.Insert(e.Prefix, nil)
	}
	trie.Insert(prefix, nil)
}

// Remove deletes the exact prefix entry for src, if present. It does not
// attempt to un-mark ambiguity on any other entry that collided with it;
// peering teardown is expected to rebuild the affected source VPC's table
// from scratch via a fresh sequence of Insert calls instead.
func (t *Tables) Remove(src gwtypes.VpcDiscriminant, prefix gwtypes.Prefix) {
	t.mu.Lock()
	defer t.mu.Unlock()

	vt, ok := t.bySrcVpc[src]
	if !ok {
		return
	}
	vt.trieFor(prefix.Net()).Delete(prefix)
}

// Lookup resolves addr from src's perspective. found reports whether any
// exposed prefix covers addr at all; ambiguous reports that it does but
// more than one peering's target disagrees on the owner, so dst is not
// meaningful. pkg/pipeline's ResolveDstVpc then leaves the destination
// unset, for the stateful NAT stage's flow lookup to fill in.
func (t *Tables) Lookup(src gwtypes.VpcDiscriminant, addr netip.Addr) (dst gwtypes.VpcDiscriminant, found bool, ambiguous bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	vt, ok := t.bySrcVpc[src]
	if !ok {
		return gwtypes.VpcDiscriminant{}, false, false
	}
	net := gwtypes.NetV4
	if addr.Is6() && !addr.Is4In6() {
		net = gwtypes.NetV6
	}
	_, v, ok := vt.trieFor(net).Lookup(addr)
	if !ok {
		return gwtypes.VpcDiscriminant{}, false, false
	}
	if v == nil {
		return gwtypes.VpcDiscriminant{}, true, true
	}
	return *v, true, false
}
