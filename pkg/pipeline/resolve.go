package pipeline

import (
	"iter"

	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/resolver"
)

// ResolveDstVpc builds the stage that fills in a packet's destination
// VPC from its source VPC and destination address. An ambiguous or
// missing resolution is not fatal here -- it leaves HasDstVpc false and
// lets the stateful NAT stage's flow-table lookup pin the destination
// instead, per §4.G.
func ResolveDstVpc(tables *resolver.Tables) Stage {
	return func(in iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet] {
		return func(yield func(*gwpacket.Packet) bool) {
			for pkt := range in {
				if !pkt.IsDone() {
					resolveDstVpc(pkt, tables)
				}
				if !yield(pkt) {
					return
				}
			}
		}
	}
}

func resolveDstVpc(pkt *gwpacket.Packet, tables *resolver.Tables) {
	_, dstAddr, ok := packetAddrs(pkt)
	if !ok {
		return
	}
	dst, found, ambiguous := tables.Lookup(pkt.SrcVpc, dstAddr)
	if !found || ambiguous {
		return
	}
	pkt.DstVpc = dst
	pkt.HasDstVpc = true
}
