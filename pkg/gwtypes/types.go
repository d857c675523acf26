package gwtypes

import (
	"fmt"
	"math/big"
	"net/netip"
)

// VniMin, VniMax and VniReservedSentinel bound the valid VXLAN network
// identifier space. Zero and the sentinel value are reserved and never
// assigned to a VPC.
const (
	VniMin             uint32 = 1
	VniMax             uint32 = 1<<24 - 2
	VniReservedSentinel uint32 = 1<<24 - 1
)

// VpcDiscriminant is a tagged VPC identity. Today it carries a single
// variant, a VXLAN network identifier; the tag exists so a second
// variant (e.g. a local-only VPC id) can be added without changing the
// type callers hold. Its only accessor today is Vni.
type VpcDiscriminant struct {
	vni uint32
}

// NewVni constructs a VpcDiscriminant from a VNI, rejecting reserved values.
func NewVni(vni uint32) (VpcDiscriminant, error) {
	if vni == 0 || vni == VniReservedSentinel {
		return VpcDiscriminant{}, fmt.Errorf("vni %d is reserved", vni)
	}
	if vni < VniMin || vni > VniMax {
		return VpcDiscriminant{}, fmt.Errorf("vni %d out of range [%d,%d]", vni, VniMin, VniMax)
	}
	return VpcDiscriminant{vni: vni}, nil
}

// Vni returns the underlying VXLAN network identifier.
func (v VpcDiscriminant) Vni() uint32 { return v.vni }

// IsZero reports whether this is the zero value (no discriminant assigned).
func (v VpcDiscriminant) IsZero() bool { return v.vni == 0 }

func (v VpcDiscriminant) String() string { return fmt.Sprintf("vni:%d", v.vni) }

// GenId is a monotonically increasing configuration generation identifier.
// GenId zero is reserved for the "blank" (empty) configuration applied at
// process startup.
type GenId uint64

// GenIdBlank is the reserved generation representing an empty configuration.
const GenIdBlank GenId = 0

// Protocol identifies the L4 (or L4-equivalent) protocol of a packet for
// flow-key and NAT purposes.
type Protocol uint8

const (
	ProtocolTCP Protocol = iota
	ProtocolUDP
	ProtocolICMPv4
	ProtocolICMPv6
	ProtocolOther
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolICMPv4:
		return "icmpv4"
	case ProtocolICMPv6:
		return "icmpv6"
	default:
		return "other"
	}
}

// Net tags the IP address family of a Prefix or IpRange. Two prefixes or
// ranges of different Net never collide or nest.
type Net int

const (
	NetV4 Net = iota
	NetV6
)

// Prefix is a normalized (address, length) pair: Addr is always the
// network address of the prefix (host bits zeroed).
type Prefix struct {
	addr netip.Addr
	bits int
}

// NewPrefixStrict rejects an (addr, bits) pair whose host bits are non-zero.
func NewPrefixStrict(addr netip.Addr, bits int) (Prefix, error) {
	if err := validateBits(addr, bits); err != nil {
		return Prefix{}, err
	}
	masked := netip.PrefixFrom(addr, bits).Masked()
	if masked.Addr() != addr {
		return Prefix{}, fmt.Errorf("%s/%d has non-network host bits", addr, bits)
	}
	return Prefix{addr: masked.Addr(), bits: bits}, nil
}

// NewPrefixTolerant masks off any non-network host bits, returning whether
// masking actually changed the address so the caller can warn.
func NewPrefixTolerant(addr netip.Addr, bits int) (p Prefix, masked bool, err error) {
	if err := validateBits(addr, bits); err != nil {
		return Prefix{}, false, err
	}
	m := netip.PrefixFrom(addr, bits).Masked()
	return Prefix{addr: m.Addr(), bits: bits}, m.Addr() != addr, nil
}

// MustPrefix is a test/config-literal helper; it panics on error.
func MustPrefix(s string) Prefix {
	pfx, err := netip.ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	p, err := NewPrefixStrict(pfx.Addr(), pfx.Bits())
	if err != nil {
		panic(err)
	}
	return p
}

func validateBits(addr netip.Addr, bits int) error {
	if !addr.IsValid() {
		return fmt.Errorf("invalid address")
	}
	maxBits := 32
	if addr.Is6() && !addr.Is4In6() {
		maxBits = 128
	}
	if bits < 0 || bits > maxBits {
		return fmt.Errorf("prefix length %d out of range for %s", bits, addr)
	}
	return nil
}

// Net reports the address family of the prefix.
func (p Prefix) Net() Net {
	if p.addr.Is4() || p.addr.Is4In6() {
		return NetV4
	}
	return NetV6
}

// Addr returns the (masked) network address.
func (p Prefix) Addr() netip.Addr { return p.addr }

// Bits returns the prefix length.
func (p Prefix) Bits() int { return p.bits }

func (p Prefix) String() string { return fmt.Sprintf("%s/%d", p.addr, p.bits) }

// MarshalText renders the prefix the same way String does, so Prefix
// round-trips through anything that drives encoding.TextMarshaler --
// encoding/json directly, and gopkg.in/yaml.v3 as its fallback for types
// with no exported fields.
func (p Prefix) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the "addr/bits" form MarshalText produces,
// rejecting non-network host bits the same way NewPrefixStrict does.
func (p *Prefix) UnmarshalText(text []byte) error {
	pfx, err := netip.ParsePrefix(string(text))
	if err != nil {
		return fmt.Errorf("parse prefix %q: %w", text, err)
	}
	parsed, err := NewPrefixStrict(pfx.Addr(), pfx.Bits())
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// IsValid reports whether this Prefix was constructed (vs. the zero value).
func (p Prefix) IsValid() bool { return p.addr.IsValid() }

// Contains reports whether addr falls within the prefix.
func (p Prefix) Contains(addr netip.Addr) bool {
	return netip.PrefixFrom(p.addr, p.bits).Contains(addr)
}

// ContainsPrefix reports whether other is nested within p (p is equal to or
// less specific than other, and they share the same network bits).
func (p Prefix) ContainsPrefix(other Prefix) bool {
	if p.Net() != other.Net() {
		return false
	}
	if other.bits < p.bits {
		return false
	}
	return netip.PrefixFrom(p.addr, p.bits).Contains(other.addr) ||
		(p.bits == other.bits && p.addr == other.addr)
}

// Equal reports whether p and other denote the same prefix.
func (p Prefix) Equal(other Prefix) bool {
	return p.Net() == other.Net() && p.bits == other.bits && p.addr == other.addr
}

// Overlaps reports whether p and other share at least one address, whether
// or not one contains the other.
func (p Prefix) Overlaps(other Prefix) bool {
	if p.Net() != other.Net() {
		return false
	}
	return netip.PrefixFrom(p.addr, p.bits).Overlaps(netip.PrefixFrom(other.addr, other.bits))
}

// Collides reports an overlap that is neither containment nor equality.
// Within a single address family this can never happen for prefixes (two
// prefixes always nest or are disjoint); it is retained for symmetry with
// pkg/lpm's Trie.CollidesWith, its only caller.
func (p Prefix) Collides(other Prefix) bool {
	if !p.Overlaps(other) {
		return false
	}
	return !p.ContainsPrefix(other) && !other.ContainsPrefix(p)
}

// Cardinality returns the number of addresses covered by the prefix.
func (p Prefix) Cardinality() *big.Int {
	maxBits := 32
	if p.Net() == NetV6 {
		maxBits = 128
	}
	exp := maxBits - p.bits
	if exp <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Lsh(big.NewInt(1), uint(exp))
}

// NthAddress returns the address at position offset within the prefix
// (offset 0 is the network address).
func (p Prefix) NthAddress(offset *big.Int) (netip.Addr, error) {
	if offset.Sign() < 0 || offset.Cmp(p.Cardinality()) >= 0 {
		return netip.Addr{}, fmt.Errorf("offset %s out of range for %s", offset, p)
	}
	return addAddr(p.addr, offset)
}

// Offset returns the position of addr within the prefix, or an error if
// addr does not fall within it.
func (p Prefix) Offset(addr netip.Addr) (*big.Int, error) {
	if !p.Contains(addr) {
		return nil, fmt.Errorf("%s not within %s", addr, p)
	}
	return subAddr(addr, p.addr), nil
}

// IpRange is an inclusive, contiguous address range that need not be
// prefix-aligned -- the result of subtracting exclusion prefixes from a
// NAT target prefix, for example.
type IpRange struct {
	Start netip.Addr
	End   netip.Addr
}

// NewIpRange validates Start <= End and same address family.
func NewIpRange(start, end netip.Addr) (IpRange, error) {
	if !start.IsValid() || !end.IsValid() {
		return IpRange{}, fmt.Errorf("invalid address in range")
	}
	if start.Is4() != end.Is4() {
		return IpRange{}, fmt.Errorf("mismatched address families in range %s-%s", start, end)
	}
	if start.Compare(end) > 0 {
		return IpRange{}, fmt.Errorf("range start %s after end %s", start, end)
	}
	return IpRange{Start: start, End: end}, nil
}

// RangeFromPrefix returns the IpRange spanning an entire prefix.
func RangeFromPrefix(p Prefix) IpRange {
	last, _ := p.NthAddress(new(big.Int).Sub(p.Cardinality(), big.NewInt(1)))
	return IpRange{Start: p.addr, End: last}
}

func (r IpRange) Contains(addr netip.Addr) bool {
	return addr.Compare(r.Start) >= 0 && addr.Compare(r.End) <= 0
}

// Cardinality returns the number of addresses in the range.
func (r IpRange) Cardinality() *big.Int {
	return new(big.Int).Add(subAddr(r.End, r.Start), big.NewInt(1))
}

// NthAddress returns the address at position offset within the range.
func (r IpRange) NthAddress(offset *big.Int) (netip.Addr, error) {
	if offset.Sign() < 0 || offset.Cmp(r.Cardinality()) >= 0 {
		return netip.Addr{}, fmt.Errorf("offset %s out of range for %s-%s", offset, r.Start, r.End)
	}
	return addAddr(r.Start, offset)
}

func (r IpRange) String() string { return fmt.Sprintf("%s-%s", r.Start, r.End) }

// PortRange is an inclusive L4 port range, start <= end, both in 1..65535.
type PortRange struct {
	Start uint16
	End   uint16
}

// FullPortRange spans the entire usable (non-zero) port space.
var FullPortRange = PortRange{Start: 1, End: 65535}

// NewPortRange validates start <= end and both within 1..65535.
func NewPortRange(start, end uint16) (PortRange, error) {
	if start == 0 || end == 0 {
		return PortRange{}, fmt.Errorf("port 0 is reserved")
	}
	if start > end {
		return PortRange{}, fmt.Errorf("port range start %d after end %d", start, end)
	}
	return PortRange{Start: start, End: end}, nil
}

func (r PortRange) Contains(port uint16) bool { return port >= r.Start && port <= r.End }

func (r PortRange) Cardinality() int { return int(r.End-r.Start) + 1 }

// Overlaps reports whether r and other share at least one port.
func (r PortRange) Overlaps(other PortRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

func (r PortRange) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

// addAddr and subAddr do big-integer arithmetic on netip.Addr by round
// tripping through its big-endian byte representation; both IPv4 (4 byte)
// and IPv6 (16 byte) addresses are handled uniformly.
func addAddr(base netip.Addr, offset *big.Int) (netip.Addr, error) {
	b := addrBigInt(base)
	sum := new(big.Int).Add(b, offset)
	return bigIntAddr(sum, base.BitLen())
}

func subAddr(a, b netip.Addr) *big.Int {
	return new(big.Int).Sub(addrBigInt(a), addrBigInt(b))
}

func addrBigInt(a netip.Addr) *big.Int {
	buf := a.As16()
	if a.Is4() {
		b := a.As4()
		return new(big.Int).SetBytes(b[:])
	}
	return new(big.Int).SetBytes(buf[:])
}

func bigIntAddr(v *big.Int, bitLen int) (netip.Addr, error) {
	if v.Sign() < 0 {
		return netip.Addr{}, fmt.Errorf("negative address value")
	}
	if bitLen == 32 {
		var buf [4]byte
		b := v.Bytes()
		if len(b) > 4 {
			return netip.Addr{}, fmt.Errorf("address overflow")
		}
		copy(buf[4-len(b):], b)
		return netip.AddrFrom4(buf), nil
	}
	var buf [16]byte
	b := v.Bytes()
	if len(b) > 16 {
		return netip.Addr{}, fmt.Errorf("address overflow")
	}
	copy(buf[16-len(b):], b)
	return netip.AddrFrom16(buf), nil
}
