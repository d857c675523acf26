package nat

import (
	"net/netip"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// TranslationData describes the rewrite to apply to an ICMP error message's
// embedded (inner) packet: the inner packet is itself one end of a flow
// that was NAT'ed, so reporting it back to the sender verbatim would leak
// post-translation addressing. Any field left unset (zero Addr, zero port)
// means "leave this field untouched" -- a stateless 1:1 mapping frequently
// translates only the address, never the port.
type TranslationData struct {
	SrcAddr netip.Addr
	DstAddr netip.Addr
	SrcPort uint16
	DstPort uint16
}

// InnerTranslation resolves the source/destination rewrite for the embedded
// packet of an ICMP error, given the already-resolved outer-packet mapping
// tables for the packet's source VPC. Per the protocol, the embedded packet
// is the original (pre-NAT, from the sender's perspective) packet travelling
// in the reverse direction, so address roles are swapped relative to the
// outer packet: the embedded packet's source address is looked up against
// the table's destination-mapping side and vice versa.
func (t *PerVpcTable) InnerTranslation(innerSrc, innerDst netip.Addr, dstVpc gwtypes.VpcDiscriminant) TranslationData {
	var out TranslationData
	if addr, ok := t.FindDstMapping(innerSrc); ok {
		out.SrcAddr = addr
	}
	if addr, ok := t.FindSrcMapping(innerDst, dstVpc); ok {
		out.DstAddr = addr
	}
	return out
}
