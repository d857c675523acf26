package nat

import (
	"fmt"
	"math/big"
	"net/netip"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/lpm"
)

// NatTableValue is the value stored at an LPM entry for stateless NAT: an
// ordered run of target address ranges whose combined cardinality must
// equal the cardinality of the prefix it is keyed by, so that every
// address in the source prefix maps to exactly one address in the target
// ranges and vice versa.
type NatTableValue struct {
	ranges []gwtypes.IpRange
}

// NewNatTableValue returns an empty value ready to accept ranges via AddRange.
func NewNatTableValue() *NatTableValue {
	return &NatTableValue{}
}

// AddRange appends r to the value, merging it into the last range when the
// two are contiguous so that a run of adjacent prefixes collapses into one
// range instead of growing the slice unnecessarily.
func (v *NatTableValue) AddRange(r gwtypes.IpRange) {
	if len(v.ranges) == 0 {
		v.ranges = append(v.ranges, r)
		return
	}
	last := &v.ranges[len(v.ranges)-1]
	if merged, ok := mergeRanges(*last, r); ok {
		*last = merged
		return
	}
	v.ranges = append(v.ranges, r)
}

// mergeRanges merges b into a if b starts exactly one address past the end
// of a. It reports whether the merge happened.
func mergeRanges(a, b gwtypes.IpRange) (gwtypes.IpRange, bool) {
	if a.End.BitLen() != b.Start.BitLen() {
		return gwtypes.IpRange{}, false
	}
	next, ok := addrNext(a.End)
	if !ok || next != b.Start {
		return gwtypes.IpRange{}, false
	}
	return gwtypes.IpRange{Start: a.Start, End: b.End}, true
}

// addrNext returns the address immediately following a, or false on overflow
// (a is the all-ones address of its family).
func addrNext(a netip.Addr) (netip.Addr, bool) {
	buf := a.AsSlice()
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] != 0xff {
			buf[i]++
			if a.Is4() {
				return netip.AddrFrom4([4]byte(buf)), true
			}
			return netip.AddrFrom16([16]byte(buf)), true
		}
		buf[i] = 0
	}
	return netip.Addr{}, false
}

// Cardinality returns the total number of addresses covered by the value's ranges.
func (v *NatTableValue) Cardinality() *big.Int {
	sum := big.NewInt(0)
	for _, r := range v.ranges {
		sum.Add(sum, r.Cardinality())
	}
	return sum
}

// GetEntry returns the address at the given offset across the concatenated
// ranges, or false if the offset is out of bounds.
func (v *NatTableValue) GetEntry(offset *big.Int) (netip.Addr, bool) {
	if offset.Sign() < 0 || offset.Cmp(v.Cardinality()) >= 0 {
		return netip.Addr{}, false
	}
	remaining := new(big.Int).Set(offset)
	for _, r := range v.ranges {
		card := r.Cardinality()
		if remaining.Cmp(card) < 0 {
			return r.NthAddress(remaining)
		}
		remaining.Sub(remaining, card)
	}
	return netip.Addr{}, false
}

// NatRuleTable is a single direction's (source or destination) stateless
// rule set for one VPC pairing: an LPM trie from covering prefix to target ranges.
type NatRuleTable struct {
	v4 *lpm.Trie[*NatTableValue]
	v6 *lpm.Trie[*NatTableValue]
}

// NewNatRuleTable returns an empty rule table for both address families.
func NewNatRuleTable() *NatRuleTable {
	return &NatRuleTable{
		v4: lpm.NewTrieV4[*NatTableValue](),
		v6: lpm.NewTrieV6[*NatTableValue](),
	}
}

// Insert stores value under prefix, replacing any value already stored at
// that exact prefix.
func (t *NatRuleTable) Insert(prefix gwtypes.Prefix, value *NatTableValue) error {
	switch prefix.Net() {
	case gwtypes.NetV4:
		_, err := t.v4.Insert(prefix, value)
		return err
	case gwtypes.NetV6:
		_, err := t.v6.Insert(prefix, value)
		return err
	default:
		return fmt.Errorf("nat: prefix %s has unknown address family", prefix)
	}
}

// Lookup finds the most specific prefix covering addr and returns it along
// with the value stored there.
func (t *NatRuleTable) Lookup(addr netip.Addr) (gwtypes.Prefix, *NatTableValue, bool) {
	if addr.Is4() {
		return t.v4.Lookup(addr)
	}
	return t.v6.Lookup(addr)
}

// Get returns the value stored at exactly prefix, without doing an LPM walk.
func (t *NatRuleTable) Get(prefix gwtypes.Prefix) (*NatTableValue, bool) {
	if prefix.Net() == gwtypes.NetV4 {
		v, ok := t.v4.Get(prefix)
		if !ok {
			return nil, false
		}
		return *v, true
	}
	v, ok := t.v6.Get(prefix)
	if !ok {
		return nil, false
	}
	return *v, true
}

// PerVpcTable holds every stateless NAT rule that applies to packets
// originating from one source VPC: a single destination-NAT table (applied
// regardless of which VPC the packet is destined for) and a source-NAT
// table keyed additionally by destination VPC, since the target range for
// source NAT depends on which VPC the packet is entering.
type PerVpcTable struct {
	DstNat *NatRuleTable
	SrcNat map[gwtypes.VpcDiscriminant]*NatRuleTable
}

// NewPerVpcTable returns an empty table.
func NewPerVpcTable() *PerVpcTable {
	return &PerVpcTable{
		DstNat: NewNatRuleTable(),
		SrcNat: make(map[gwtypes.VpcDiscriminant]*NatRuleTable),
	}
}

// srcTableFor returns (creating if needed) the source-NAT table for dstVpc.
func (t *PerVpcTable) srcTableFor(dstVpc gwtypes.VpcDiscriminant) *NatRuleTable {
	tbl, ok := t.SrcNat[dstVpc]
	if !ok {
		tbl = NewNatRuleTable()
		t.SrcNat[dstVpc] = tbl
	}
	return tbl
}

// AddSrcRange adds a target range for packets whose source address falls in
// prefix and whose destination VPC is dstVpc.
func (t *PerVpcTable) AddSrcRange(prefix gwtypes.Prefix, dstVpc gwtypes.VpcDiscriminant, target gwtypes.IpRange) error {
	tbl := t.srcTableFor(dstVpc)
	v, ok := tbl.Get(prefix)
	if !ok || v == nil {
		v = NewNatTableValue()
		if err := tbl.Insert(prefix, v); err != nil {
			return err
		}
	}
	v.AddRange(target)
	return nil
}

// AddDstRange adds a target range for packets whose destination address
// falls in prefix.
func (t *PerVpcTable) AddDstRange(prefix gwtypes.Prefix, target gwtypes.IpRange) error {
	v, ok := t.DstNat.Get(prefix)
	if !ok || v == nil {
		v = NewNatTableValue()
		if err := t.DstNat.Insert(prefix, v); err != nil {
			return err
		}
	}
	v.AddRange(target)
	return nil
}

// FindSrcMapping resolves the stateless source-NAT target address for addr
// given the packet's destination VPC.
func (t *PerVpcTable) FindSrcMapping(addr netip.Addr, dstVpc gwtypes.VpcDiscriminant) (netip.Addr, bool) {
	tbl, ok := t.SrcNat[dstVpc]
	if !ok {
		return netip.Addr{}, false
	}
	prefix, value, ok := tbl.Lookup(addr)
	if !ok {
		return netip.Addr{}, false
	}
	return resolveOffset(prefix, value, addr)
}

// FindDstMapping resolves the stateless destination-NAT target address for addr.
func (t *PerVpcTable) FindDstMapping(addr netip.Addr) (netip.Addr, bool) {
	prefix, value, ok := t.DstNat.Lookup(addr)
	if !ok {
		return netip.Addr{}, false
	}
	return resolveOffset(prefix, value, addr)
}

func resolveOffset(prefix gwtypes.Prefix, value *NatTableValue, addr netip.Addr) (netip.Addr, bool) {
	offset, err := prefix.Offset(addr)
	if err != nil {
		return netip.Addr{}, false
	}
	return value.GetEntry(offset)
}

// Tables holds one PerVpcTable per source VPC, the top-level object
// assembled by pkg/gwconfig during configuration derivation; pkg/worker
// builds a new stateless NAT stage around it on each configuration generation.
type Tables struct {
	bySrcVpc map[gwtypes.VpcDiscriminant]*PerVpcTable
}

// NewTables returns an empty table set.
func NewTables() *Tables {
	return &Tables{bySrcVpc: make(map[gwtypes.VpcDiscriminant]*PerVpcTable)}
}

// Table returns the per-VPC table for srcVpc, creating it if absent.
func (t *Tables) Table(srcVpc gwtypes.VpcDiscriminant) *PerVpcTable {
	tbl, ok := t.bySrcVpc[srcVpc]
	if !ok {
		tbl = NewPerVpcTable()
		t.bySrcVpc[srcVpc] = tbl
	}
	return tbl
}

// Get returns the per-VPC table for srcVpc without creating one.
func (t *Tables) Get(srcVpc gwtypes.VpcDiscriminant) (*PerVpcTable, bool) {
	tbl, ok := t.bySrcVpc[srcVpc]
	return tbl, ok
}
