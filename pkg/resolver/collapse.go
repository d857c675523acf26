package resolver

import (
	"math/big"
	"net/netip"
	"sort"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// CollapseExposes reduces a peering's exposed addresses -- an include list
// and an exclude list, as found on a VpcExpose's ips/not fields -- to a
// minimal, merged, exclusion-free set of prefixes suitable for insertion
// into Tables. It is idempotent: collapsing an already-collapsed set
// returns an equal set.
func CollapseExposes(includes, excludes []gwtypes.Prefix) []gwtypes.Prefix {
	v4in, v6in := splitByFamily(includes)
	v4ex, v6ex := splitByFamily(excludes)

	out := append(collapseFamily(v4in, v4ex), collapseFamily(v6in, v6ex)...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func splitByFamily(prefixes []gwtypes.Prefix) (v4, v6 []gwtypes.Prefix) {
	for _, p := range prefixes {
		if p.Net() == gwtypes.NetV4 {
			v4 = append(v4, p)
		} else {
			v6 = append(v6, p)
		}
	}
	return v4, v6
}

func collapseFamily(includes, excludes []gwtypes.Prefix) []gwtypes.Prefix {
	var results []gwtypes.Prefix
	for _, inc := range includes {
		pieces := []gwtypes.Prefix{inc}
		for _, ex := range excludes {
			var next []gwtypes.Prefix
			for _, piece := range pieces {
				next = append(next, subtractPrefix(piece, ex)...)
			}
			pieces = next
		}
		results = append(results, pieces...)
	}
	results = dropContained(results)
	return mergeAdjacent(results)
}

// subtractPrefix removes exclude's addresses from base, returning the
// (possibly empty, possibly multi-element) set of prefixes that remain.
// base and exclude either nest or are disjoint, since both are aligned
// prefixes within the same family.
func subtractPrefix(base, exclude gwtypes.Prefix) []gwtypes.Prefix {
	if !base.Overlaps(exclude) {
		return []gwtypes.Prefix{base}
	}
	if exclude.ContainsPrefix(base) {
		return nil
	}
	if base.ContainsPrefix(exclude) && !base.Equal(exclude) {
		left, right, err := splitPrefix(base)
		if err != nil {
			return []gwtypes.Prefix{base}
		}
		var out []gwtypes.Prefix
		out = append(out, subtractPrefix(left, exclude)...)
		out = append(out, subtractPrefix(right, exclude)...)
		return out
	}
	// base.Equal(exclude) falls out of the ContainsPrefix branch above
	// (a prefix contains itself), so reaching here means full exclusion.
	return nil
}

// splitPrefix divides p into its two half-size children.
func splitPrefix(p gwtypes.Prefix) (left, right gwtypes.Prefix, err error) {
	left, err = gwtypes.NewPrefixStrict(p.Addr(), p.Bits()+1)
	if err != nil {
		return gwtypes.Prefix{}, gwtypes.Prefix{}, err
	}
	half := new(big.Int).Rsh(p.Cardinality(), 1)
	rightAddr, err := p.NthAddress(half)
	if err != nil {
		return gwtypes.Prefix{}, gwtypes.Prefix{}, err
	}
	right, err = gwtypes.NewPrefixStrict(rightAddr, p.Bits()+1)
	if err != nil {
		return gwtypes.Prefix{}, gwtypes.Prefix{}, err
	}
	return left, right, nil
}

// dropContained removes any prefix that is strictly nested inside another
// prefix in the same set, so that duplicate or overlapping includes don't
// survive into the merge pass as redundant entries.
func dropContained(prefixes []gwtypes.Prefix) []gwtypes.Prefix {
	out := make([]gwtypes.Prefix, 0, len(prefixes))
	for i, p := range prefixes {
		contained := false
		for j, other := range prefixes {
			if i == j {
				continue
			}
			if other.ContainsPrefix(p) && !other.Equal(p) {
				contained = true
				break
			}
			if other.Equal(p) && j < i {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, p)
		}
	}
	return out
}

// mergeAdjacent repeatedly merges sibling prefix pairs (two prefixes of
// equal length sharing a parent) into their parent until no more merges
// are possible, producing a minimal canonical cover.
func mergeAdjacent(prefixes []gwtypes.Prefix) []gwtypes.Prefix {
	cur := append([]gwtypes.Prefix(nil), prefixes...)
	for {
		next, changed := mergeOnePass(cur)
		cur = next
		if !changed {
			return cur
		}
	}
}

func mergeOnePass(prefixes []gwtypes.Prefix) ([]gwtypes.Prefix, bool) {
	sorted := append([]gwtypes.Prefix(nil), prefixes...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Bits() != sorted[j].Bits() {
			return sorted[i].Bits() > sorted[j].Bits()
		}
		return sorted[i].String() < sorted[j].String()
	})

	used := make([]bool, len(sorted))
	var out []gwtypes.Prefix
	changed := false
	for i := range sorted {
		if used[i] {
			continue
		}
		merged := false
		for j := i + 1; j < len(sorted); j++ {
			if used[j] || sorted[j].Bits() != sorted[i].Bits() {
				continue
			}
			if parent, ok := buddyParent(sorted[i], sorted[j]); ok {
				out = append(out, parent)
				used[i], used[j] = true, true
				changed = true
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, sorted[i])
		}
	}
	return out, changed
}

// buddyParent reports whether a and b are siblings (equal-length prefixes
// that together exactly cover their one-bit-shorter parent) and returns
// that parent.
func buddyParent(a, b gwtypes.Prefix) (gwtypes.Prefix, bool) {
	if a.Net() != b.Net() || a.Bits() != b.Bits() || a.Bits() == 0 {
		return gwtypes.Prefix{}, false
	}
	parentBits := a.Bits() - 1
	parentAddr, ok := maskAddr(a.Addr(), parentBits)
	if !ok {
		return gwtypes.Prefix{}, false
	}
	otherParentAddr, ok := maskAddr(b.Addr(), parentBits)
	if !ok || parentAddr != otherParentAddr {
		return gwtypes.Prefix{}, false
	}
	if a.Addr() == b.Addr() {
		return gwtypes.Prefix{}, false
	}
	parent, err := gwtypes.NewPrefixStrict(parentAddr, parentBits)
	if err != nil {
		return gwtypes.Prefix{}, false
	}
	return parent, true
}

func maskAddr(addr netip.Addr, bits int) (netip.Addr, bool) {
	p := netip.PrefixFrom(addr, bits)
	if !p.IsValid() {
		return netip.Addr{}, false
	}
	return p.Masked().Addr(), true
}
