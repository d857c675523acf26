package gwtypes

import (
	"encoding/json"
	"math/big"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewVniRejectsReserved(t *testing.T) {
	_, err := NewVni(0)
	require.Error(t, err)

	_, err = NewVni(VniReservedSentinel)
	require.Error(t, err)

	_, err = NewVni(254)
	require.NoError(t, err, "254 is rejected at the config layer, not here")

	v, err := NewVni(100)
	require.NoError(t, err)
	require.Equal(t, uint32(100), v.Vni())
}

func TestPrefixStrictRejectsHostBits(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.1")
	_, err := NewPrefixStrict(addr, 24)
	require.Error(t, err)

	p, err := NewPrefixStrict(netip.MustParseAddr("10.0.0.0"), 24)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.0/24", p.String())
}

func TestPrefixTolerantMasks(t *testing.T) {
	p, masked, err := NewPrefixTolerant(netip.MustParseAddr("10.0.0.5"), 24)
	require.NoError(t, err)
	require.True(t, masked)
	require.Equal(t, "10.0.0.0/24", p.String())
}

func TestPrefixContainsAndCollides(t *testing.T) {
	outer := MustPrefix("10.0.0.0/8")
	inner := MustPrefix("10.1.0.0/16")
	disjoint := MustPrefix("11.0.0.0/8")

	require.True(t, outer.ContainsPrefix(inner))
	require.False(t, inner.ContainsPrefix(outer))
	require.False(t, outer.Collides(inner), "containment is not collision")
	require.False(t, outer.Overlaps(disjoint))
}

func TestPrefixZeroRouteMatchesEverything(t *testing.T) {
	allV4 := MustPrefix("0.0.0.0/0")
	require.True(t, allV4.Contains(netip.MustParseAddr("255.255.255.255")))

	allV6 := MustPrefix("::/0")
	require.True(t, allV6.Contains(netip.MustParseAddr("2001:db8::1")))
}

func TestPrefixCardinalityAndNthAddress(t *testing.T) {
	p := MustPrefix("192.168.1.0/24")
	require.Equal(t, big.NewInt(256), p.Cardinality())

	addr, err := p.NthAddress(big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, "192.168.1.5", addr.String())

	off, err := p.Offset(addr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), off)
}

func TestIpRangeFromPrefixAndBack(t *testing.T) {
	p := MustPrefix("10.1.0.0/24")
	r := RangeFromPrefix(p)
	require.Equal(t, "10.1.0.0", r.Start.String())
	require.Equal(t, "10.1.0.255", r.End.String())
	require.Equal(t, big.NewInt(256), r.Cardinality())
}

func TestPortRangeOverlapAndFull(t *testing.T) {
	a, err := NewPortRange(100, 200)
	require.NoError(t, err)
	b, err := NewPortRange(200, 300)
	require.NoError(t, err)
	require.True(t, a.Overlaps(b))

	_, err = NewPortRange(0, 10)
	require.Error(t, err, "port 0 is never a valid range endpoint")

	require.Equal(t, 65535, FullPortRange.Cardinality())
}

func TestPrefixTextRoundTrips(t *testing.T) {
	p := MustPrefix("10.1.0.0/24")

	text, err := p.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "10.1.0.0/24", string(text))

	var got Prefix
	require.NoError(t, got.UnmarshalText(text))
	require.True(t, got.Equal(p))
}

func TestPrefixJSONRoundTrips(t *testing.T) {
	type holder struct {
		Networks []Prefix `json:"networks"`
	}
	in := holder{Networks: []Prefix{MustPrefix("10.0.0.0/24"), MustPrefix("2001:db8::/32")}}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out holder
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Networks, 2)
	require.True(t, out.Networks[0].Equal(in.Networks[0]))
	require.True(t, out.Networks[1].Equal(in.Networks[1]))
}

func TestPrefixUnmarshalTextRejectsHostBits(t *testing.T) {
	var p Prefix
	require.Error(t, p.UnmarshalText([]byte("10.1.0.5/24")))
}
