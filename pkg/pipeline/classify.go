package pipeline

import (
	"iter"
	"net"

	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// IngressConfig maps an input interface name to the VPC it carries
// traffic for, and the gateway's own MAC address on that interface (for
// the MacNotForUs check).
type IngressConfig struct {
	IfaceVpc map[string]gwtypes.VpcDiscriminant
	Mac      net.HardwareAddr
}

// Classify builds the first pipeline stage: it resolves a packet's
// source VPC from the interface it arrived on, and rejects frames this
// gateway has no business processing (wrong destination MAC, no
// recognized IP layer).
func Classify(cfg IngressConfig) Stage {
	return func(in iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet] {
		return func(yield func(*gwpacket.Packet) bool) {
			for pkt := range in {
				classify(pkt, cfg)
				if !yield(pkt) {
					return
				}
			}
		}
	}
}

func classify(pkt *gwpacket.Packet, cfg IngressConfig) {
	if pkt.IsDone() {
		return
	}

	if eth := pkt.Ethernet(); eth != nil && len(cfg.Mac) == 6 {
		if !macMatches(eth.DstMAC, cfg.Mac) {
			pkt.SetDone(gwpacket.MacNotForUs)
			return
		}
	}

	if pkt.IPv4() == nil && pkt.IPv6() == nil {
		pkt.SetDone(gwpacket.NotIp)
		return
	}

	vpc, ok := cfg.IfaceVpc[pkt.Iif]
	if !ok {
		pkt.SetDone(gwpacket.Unroutable)
		return
	}
	pkt.SrcVpc = vpc
}

func macMatches(dst, gateway net.HardwareAddr) bool {
	if dst.String() == "ff:ff:ff:ff:ff:ff" {
		return true
	}
	if len(dst) > 0 && dst[0]&0x01 == 1 {
		// multicast (includes IPv6 neighbor discovery destinations)
		return true
	}
	return len(dst) == len(gateway) && string(dst) == string(gateway)
}
