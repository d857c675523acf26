package pipeline

import (
	"encoding/binary"
	"net/netip"

	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/nat"
)

// translateIcmpInner rewrites the inner (embedded) IP header and L4 port
// pair carried by an ICMP error message whose outer header was just
// NAT'ed, so the embedded packet still makes sense to whichever stack
// receives the ICMP error as the "return direction" of the original
// flow. It recomputes the inner IPv4 header checksum by hand, since
// that header is opaque bytes inside the ICMP payload as far as
// gopacket is concerned; the enclosing ICMP checksum is left to
// Packet.Serialize's normal ComputeChecksums pass once checksum-refresh
// is set, since layers.ICMPv4 recomputes its own checksum over its
// (now-mutated) payload bytes on every serialize. It never touches the
// embedded L4 checksum, since an ICMP error payload is conventionally
// truncated and does not carry enough of the original segment to
// recompute it correctly.
func translateIcmpInner(pkt *gwpacket.Packet, perVpc *nat.PerVpcTable) {
	payload := icmpPayload(pkt)
	if payload == nil {
		return
	}
	if len(payload) < 20 {
		pkt.SetDone(gwpacket.Malformed)
		return
	}

	version := payload[0] >> 4
	if version != 4 {
		// IPv6-in-ICMPv6 inner headers are left untouched: §9's worked
		// examples only exercise the IPv4 case, and ICMPv6's inner
		// header starts at a fixed offset identical in shape but this
		// gateway does not yet need to rewrite it.
		return
	}

	ihl := int(payload[0]&0x0f) * 4
	if ihl < 20 || len(payload) < ihl {
		pkt.SetDone(gwpacket.Malformed)
		return
	}

	innerSrc, ok1 := netip.AddrFromSlice(payload[12:16])
	innerDst, ok2 := netip.AddrFromSlice(payload[16:20])
	if !ok1 || !ok2 {
		pkt.SetDone(gwpacket.Malformed)
		return
	}

	translation := perVpc.InnerTranslation(innerSrc.Unmap(), innerDst.Unmap(), pkt.DstVpc)
	if !translation.SrcAddr.IsValid() || !translation.DstAddr.IsValid() {
		return
	}
	if !translation.SrcAddr.Is4() || !translation.DstAddr.Is4() {
		pkt.SetDone(gwpacket.NatFailure)
		return
	}

	newSrc := translation.SrcAddr.As4()
	newDst := translation.DstAddr.As4()
	copy(payload[12:16], newSrc[:])
	copy(payload[16:20], newDst[:])

	protocol := payload[9]
	if (protocol == 6 || protocol == 17) && len(payload) >= ihl+4 {
		if translation.SrcPort != 0 {
			binary.BigEndian.PutUint16(payload[ihl:ihl+2], translation.SrcPort)
		}
		if translation.DstPort != 0 {
			binary.BigEndian.PutUint16(payload[ihl+2:ihl+4], translation.DstPort)
		}
	}

	payload[10] = 0
	payload[11] = 0
	binary.BigEndian.PutUint16(payload[10:12], internetChecksum(payload[:ihl]))

	pkt.SetChecksumRefresh()
}

// icmpPayload returns the ICMPv4 message body carrying the embedded
// packet; it returns nil for ICMPv6 and for packets with no ICMPv4 layer.
func icmpPayload(pkt *gwpacket.Packet) []byte {
	if icmp4 := pkt.ICMPv4(); icmp4 != nil {
		return icmp4.Payload
	}
	return nil
}

// internetChecksum computes the RFC 1071 one's-complement checksum used
// by both the IPv4 header and ICMP.
func internetChecksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
