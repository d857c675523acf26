package lpm

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// Entry is one (prefix, value) pair returned by MatchingEntries.
type Entry[V any] struct {
	Prefix gwtypes.Prefix
	Value  V
}

// Trie is a longest-prefix-match table scoped to a single address family.
type Trie[V any] struct {
	family  gwtypes.Net
	maxBits int
	levels  map[int]map[gwtypes.Prefix]V
}

// NewTrieV4 constructs an empty IPv4 trie.
func NewTrieV4[V any]() *Trie[V] {
	return &Trie[V]{family: gwtypes.NetV4, maxBits: 32, levels: make(map[int]map[gwtypes.Prefix]V)}
}

// NewTrieV6 constructs an empty IPv6 trie.
func NewTrieV6[V any]() *Trie[V] {
	return &Trie[V]{family: gwtypes.NetV6, maxBits: 128, levels: make(map[int]map[gwtypes.Prefix]V)}
}

// Family reports the address family this trie was constructed for.
func (t *Trie[V]) Family() gwtypes.Net { return t.family }

func (t *Trie[V]) checkFamily(p gwtypes.Prefix) error {
	if p.Net() != t.family {
		return fmt.Errorf("prefix %s does not match trie family", p)
	}
	return nil
}

// Insert stores v under p, replacing any existing value for that exact
// prefix. It reports whether a value was replaced.
func (t *Trie[V]) Insert(p gwtypes.Prefix, v V) (bool, error) {
	if err := t.checkFamily(p); err != nil {
		return false, err
	}
	level, ok := t.levels[p.Bits()]
	if !ok {
		level = make(map[gwtypes.Prefix]V)
		t.levels[p.Bits()] = level
	}
	_, replaced := level[p]
	level[p] = v
	return replaced, nil
}

// Delete removes the value stored at exactly p, if any.
func (t *Trie[V]) Delete(p gwtypes.Prefix) bool {
	level, ok := t.levels[p.Bits()]
	if !ok {
		return false
	}
	if _, ok := level[p]; !ok {
		return false
	}
	delete(level, p)
	if len(level) == 0 {
		delete(t.levels, p.Bits())
	}
	return true
}

// Get returns a pointer to a copy of the value stored at exactly p.
// Changes made through that pointer reach the trie only when the value
// is passed back to Insert; when V is itself a pointer type, the value it
// points to is shared with the trie.
func (t *Trie[V]) Get(p gwtypes.Prefix) (*V, bool) {
	level, ok := t.levels[p.Bits()]
	if !ok {
		return nil, false
	}
	v, ok := level[p]
	if !ok {
		return nil, false
	}
	// Return a pointer into a fresh cell; callers mutate it and call
	// Insert to publish. Maps cannot yield addressable element pointers
	// directly, so we hand back a copy-backed pointer, matching the
	// common Go idiom of "load, mutate, store" instead of true aliasing.
	return &v, true
}

// Lookup returns the most specific prefix containing addr, if any.
func (t *Trie[V]) Lookup(addr netip.Addr) (gwtypes.Prefix, V, bool) {
	var zero V
	for bits := t.maxBits; bits >= 0; bits-- {
		level, ok := t.levels[bits]
		if !ok {
			continue
		}
		candidate, _, err := gwtypes.NewPrefixTolerant(addr, bits)
		if err != nil {
			continue
		}
		if v, ok := level[candidate]; ok {
			return candidate, v, true
		}
	}
	return gwtypes.Prefix{}, zero, false
}

// MatchingEntries returns every prefix containing addr, most specific
// first.
func (t *Trie[V]) MatchingEntries(addr netip.Addr) []Entry[V] {
	var out []Entry[V]
	for bits := t.maxBits; bits >= 0; bits-- {
		level, ok := t.levels[bits]
		if !ok {
			continue
		}
		candidate, _, err := gwtypes.NewPrefixTolerant(addr, bits)
		if err != nil {
			continue
		}
		if v, ok := level[candidate]; ok {
			out = append(out, Entry[V]{Prefix: candidate, Value: v})
		}
	}
	return out
}

// CollidesWith returns every stored prefix that overlaps p without either
// containing the other. Within a single family this is structurally
// impossible between two *inserted* prefixes (any two prefixes of the
// same length are either equal or disjoint, and different lengths always
// nest or are disjoint), and the same holds for any probe prefix of the
// trie's family, so the result is always empty. Nothing else in this
// module calls it.
func (t *Trie[V]) CollidesWith(p gwtypes.Prefix) []gwtypes.Prefix {
	var out []gwtypes.Prefix
	if p.Net() != t.family {
		return out
	}
	for _, level := range t.levels {
		for stored := range level {
			if p.Collides(stored) {
				out = append(out, stored)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// OverlappingWith returns every stored entry whose prefix shares at least
// one address with p, whether nested, nesting, or equal. Used by
// pkg/resolver to detect ambiguous destination-VPC assignments, where two
// peerings can expose prefixes of different specificity over the same
// addresses and CollidesWith's non-nesting definition would miss the
// conflict.
func (t *Trie[V]) OverlappingWith(p gwtypes.Prefix) []Entry[V] {
	var out []Entry[V]
	if p.Net() != t.family {
		return out
	}
	for _, level := range t.levels {
		for stored, v := range level {
			if p.Overlaps(stored) {
				out = append(out, Entry[V]{Prefix: stored, Value: v})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix.String() < out[j].Prefix.String() })
	return out
}

// Len returns the number of stored prefixes.
func (t *Trie[V]) Len() int {
	n := 0
	for _, level := range t.levels {
		n += len(level)
	}
	return n
}

// All returns every stored (prefix, value) pair in no particular order.
// Its only caller is the test asserting the disjoint/nesting invariant.
func (t *Trie[V]) All() []Entry[V] {
	out := make([]Entry[V], 0, t.Len())
	for _, level := range t.levels {
		for p, v := range level {
			out = append(out, Entry[V]{Prefix: p, Value: v})
		}
	}
	return out
}
