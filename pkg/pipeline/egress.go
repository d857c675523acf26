package pipeline

import (
	"iter"

	"github.com/hedgehog/gwcore/pkg/gwpacket"
)

// Egress builds the terminal stage of the pipeline. VXLAN encapsulation
// toward a remote VTEP is not performed here: the reconciler (pkg/reconciler)
// binds each VPC's VNI to a kernel vxlan netdevice, so handing a packet to
// pkt.Oif already carries it through that device's encapsulation. This
// stage's only job is to mark a packet that reached an output interface
// and next hop as Delivered -- the worker's writer picks it up from there
// and performs the actual interface write.
func Egress() Stage {
	return func(in iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet] {
		return func(yield func(*gwpacket.Packet) bool) {
			for pkt := range in {
				if !pkt.IsDone() {
					if pkt.Oif == "" {
						pkt.SetDone(gwpacket.Unroutable)
					} else {
						pkt.SetDone(gwpacket.Delivered)
					}
				}
				if !yield(pkt) {
					return
				}
			}
		}
	}
}
