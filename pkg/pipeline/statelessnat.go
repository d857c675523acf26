package pipeline

import (
	"iter"
	"net/netip"

	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/nat"
)

// StatelessNat builds the stage that applies §4.C's stateless, 1:1
// address-range translation. Packets already natted or done are passed
// through untouched. A lookup miss is not an error -- the packet
// continues unchanged; only a rewrite across address families sets NatFailure,
// and a missing per-source-VPC table sets Unroutable.
func StatelessNat(tables *nat.Tables) Stage {
	return func(in iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet] {
		return func(yield func(*gwpacket.Packet) bool) {
			for pkt := range in {
				if pkt.IsDone() || pkt.Natted() {
					if !yield(pkt) {
						return
					}
					continue
				}
				applyStatelessNat(pkt, tables)
				if !yield(pkt) {
					return
				}
			}
		}
	}
}

func applyStatelessNat(pkt *gwpacket.Packet, tables *nat.Tables) {
	srcAddr, dstAddr, ok := packetAddrs(pkt)
	if !ok {
		return
	}
	perVpc, ok := tables.Get(pkt.SrcVpc)
	if !ok {
		pkt.SetDone(gwpacket.Unroutable)
		return
	}

	changed := false

	if pkt.HasDstVpc {
		if newSrc, ok := perVpc.FindSrcMapping(srcAddr, pkt.DstVpc); ok && newSrc != srcAddr {
			if !rewriteSrcAddr(pkt, newSrc) {
				pkt.SetDone(gwpacket.NatFailure)
				return
			}
			changed = true
		}
	}

	if newDst, ok := perVpc.FindDstMapping(dstAddr); ok && newDst != dstAddr {
		if !rewriteDstAddr(pkt, newDst) {
			pkt.SetDone(gwpacket.NatFailure)
			return
		}
		changed = true
	}

	if !changed {
		return
	}
	pkt.SetChecksumRefresh()
	pkt.SetNatted()
	translateIcmpInner(pkt, perVpc)
}

// packetAddrs returns the packet's current source and destination
// addresses, whichever IP layer is present.
func packetAddrs(pkt *gwpacket.Packet) (src, dst netip.Addr, ok bool) {
	if ip4 := pkt.IPv4(); ip4 != nil {
		src, ok1 := netip.AddrFromSlice(ip4.SrcIP)
		dst, ok2 := netip.AddrFromSlice(ip4.DstIP)
		if !ok1 || !ok2 {
			return netip.Addr{}, netip.Addr{}, false
		}
		return src.Unmap(), dst.Unmap(), true
	}
	if ip6 := pkt.IPv6(); ip6 != nil {
		src, ok1 := netip.AddrFromSlice(ip6.SrcIP)
		dst, ok2 := netip.AddrFromSlice(ip6.DstIP)
		if !ok1 || !ok2 {
			return netip.Addr{}, netip.Addr{}, false
		}
		return src, dst, true
	}
	return netip.Addr{}, netip.Addr{}, false
}

// rewriteSrcAddr and rewriteDstAddr mutate the packet's network-layer
// header in place, refusing a rewrite that would cross address
// families (a stateless rule can never legally produce that, since
// its target ranges are built from same-family prefixes, but a
// defensive check here is what turns a configuration bug into a
// precise drop reason instead of a malformed frame on the wire).
func rewriteSrcAddr(pkt *gwpacket.Packet, addr netip.Addr) bool {
	if ip4 := pkt.IPv4(); ip4 != nil {
		if !addr.Is4() {
			return false
		}
		a := addr.As4()
		ip4.SrcIP = a[:]
		return true
	}
	if ip6 := pkt.IPv6(); ip6 != nil {
		if addr.Is4() {
			return false
		}
		a := addr.As16()
		ip6.SrcIP = a[:]
		return true
	}
	return false
}

func rewriteDstAddr(pkt *gwpacket.Packet, addr netip.Addr) bool {
	if ip4 := pkt.IPv4(); ip4 != nil {
		if !addr.Is4() {
			return false
		}
		a := addr.As4()
		ip4.DstIP = a[:]
		return true
	}
	if ip6 := pkt.IPv6(); ip6 != nil {
		if addr.Is4() {
			return false
		}
		a := addr.As16()
		ip6.DstIP = a[:]
		return true
	}
	return false
}
