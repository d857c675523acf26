package lpm

import (
	"net/netip"
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/stretchr/testify/require"
)

func TestTrieLookupMostSpecific(t *testing.T) {
	tr := NewTrieV4[string]()
	_, err := tr.Insert(gwtypes.MustPrefix("10.0.0.0/8"), "coarse")
	require.NoError(t, err)
	_, err = tr.Insert(gwtypes.MustPrefix("10.1.0.0/16"), "fine")
	require.NoError(t, err)

	_, v, ok := tr.Lookup(netip.MustParseAddr("10.1.2.3"))
	require.True(t, ok)
	require.Equal(t, "fine", v)

	_, v, ok = tr.Lookup(netip.MustParseAddr("10.2.2.3"))
	require.True(t, ok)
	require.Equal(t, "coarse", v)

	_, _, ok = tr.Lookup(netip.MustParseAddr("11.0.0.1"))
	require.False(t, ok)
}

func TestTrieInsertReplaces(t *testing.T) {
	tr := NewTrieV4[int]()
	replaced, err := tr.Insert(gwtypes.MustPrefix("192.168.0.0/16"), 1)
	require.NoError(t, err)
	require.False(t, replaced)

	replaced, err = tr.Insert(gwtypes.MustPrefix("192.168.0.0/16"), 2)
	require.NoError(t, err)
	require.True(t, replaced)

	_, v, _ := tr.Lookup(netip.MustParseAddr("192.168.1.1"))
	require.Equal(t, 2, v)
}

func TestTrieRejectsWrongFamily(t *testing.T) {
	tr := NewTrieV4[int]()
	_, err := tr.Insert(gwtypes.MustPrefix("2001:db8::/32"), 1)
	require.Error(t, err)
}

func TestTrieMatchingEntriesMostSpecificFirst(t *testing.T) {
	tr := NewTrieV4[string]()
	_, _ = tr.Insert(gwtypes.MustPrefix("0.0.0.0/0"), "default")
	_, _ = tr.Insert(gwtypes.MustPrefix("10.0.0.0/8"), "mid")
	_, _ = tr.Insert(gwtypes.MustPrefix("10.1.0.0/16"), "specific")

	entries := tr.MatchingEntries(netip.MustParseAddr("10.1.2.3"))
	require.Len(t, entries, 3)
	require.Equal(t, "specific", entries[0].Value)
	require.Equal(t, "mid", entries[1].Value)
	require.Equal(t, "default", entries[2].Value)
}

func TestTrieZeroRouteLookupAlwaysSucceedsIfPresent(t *testing.T) {
	v4 := NewTrieV4[int]()
	_, _ = v4.Insert(gwtypes.MustPrefix("0.0.0.0/0"), 42)
	_, v, ok := v4.Lookup(netip.MustParseAddr("8.8.8.8"))
	require.True(t, ok)
	require.Equal(t, 42, v)

	v6 := NewTrieV6[int]()
	_, _ = v6.Insert(gwtypes.MustPrefix("::/0"), 7)
	_, v, ok = v6.Lookup(netip.MustParseAddr("2001:db8::1"))
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestTrieDisjointOrNestingInvariant(t *testing.T) {
	tr := NewTrieV4[int]()
	prefixes := []string{"10.0.0.0/8", "10.1.0.0/16", "10.2.0.0/16", "192.168.0.0/16", "192.168.1.0/24"}
	for i, s := range prefixes {
		_, err := tr.Insert(gwtypes.MustPrefix(s), i)
		require.NoError(t, err)
	}
	entries := tr.All()
	for i := range entries {
		for j := range entries {
			if i == j {
				continue
			}
			a, b := entries[i].Prefix, entries[j].Prefix
			nested := a.ContainsPrefix(b) || b.ContainsPrefix(a)
			disjoint := !a.Overlaps(b)
			require.True(t, nested || disjoint, "%s and %s neither nest nor are disjoint", a, b)
		}
	}
}

func TestTrieDeleteRemovesExactPrefix(t *testing.T) {
	tr := NewTrieV4[int]()
	_, _ = tr.Insert(gwtypes.MustPrefix("10.0.0.0/8"), 1)
	require.True(t, tr.Delete(gwtypes.MustPrefix("10.0.0.0/8")))
	require.False(t, tr.Delete(gwtypes.MustPrefix("10.0.0.0/8")))
	require.Equal(t, 0, tr.Len())
}
