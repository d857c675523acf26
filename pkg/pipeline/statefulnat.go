package pipeline

import (
	"iter"
	"net/netip"
	"time"

	"github.com/hedgehog/gwcore/pkg/flow"
	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/nat"
)

// DefaultIdleTimeout is the lifetime granted to a newly allocated
// stateful mapping absent a more specific configured value.
const DefaultIdleTimeout = 2 * time.Minute

// DefaultClosingWindow bounds how long a flow survives after a TCP
// FIN/RST is observed in either direction.
const DefaultClosingWindow = 30 * time.Second

// translation records how the stateful stage should rewrite a packet
// matching one direction of a pooled mapping: RewriteDst distinguishes
// the forward direction (rewrite source to the allocated address/port)
// from the reverse direction (rewrite destination back to the
// original, so the initiator sees its own address on the reply).
type translation struct {
	addr       netip.Addr
	port       uint16
	rewriteDst bool
}

// StatefulNat builds the stage that applies §4.E's pooled masquerade
// translation, consulting the flow table before ever touching the pool
// allocator.
func StatefulNat(flows *flow.Table, pools *nat.PoolTables, idleTimeout time.Duration) Stage {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return func(in iter.Seq[*gwpacket.Packet]) iter.Seq[*gwpacket.Packet] {
		return func(yield func(*gwpacket.Packet) bool) {
			for pkt := range in {
				if pkt.IsDone() || pkt.Natted() {
					if !yield(pkt) {
						return
					}
					continue
				}
				applyStatefulNat(pkt, flows, pools, idleTimeout)
				if !yield(pkt) {
					return
				}
			}
		}
	}
}

func applyStatefulNat(pkt *gwpacket.Packet, flows *flow.Table, pools *nat.PoolTables, idleTimeout time.Duration) {
	srcAddr, dstAddr, ok := packetAddrs(pkt)
	if !ok {
		return
	}
	proto, srcPort, dstPort, ok := packetTransport(pkt)
	if !ok {
		pkt.SetDone(gwpacket.UnsupportedTransport)
		return
	}

	key := flow.Key{
		SrcVpc:   pkt.SrcVpc,
		SrcAddr:  srcAddr,
		DstAddr:  dstAddr,
		SrcPort:  srcPort,
		DstPort:  dstPort,
		Protocol: proto,
	}

	observeTcpTeardown(pkt, flows, key)

	info, hit := flows.Lookup(key)
	if hit && info.Status() == flow.StatusActive {
		t, ok := info.NatState().(translation)
		if !ok {
			pkt.SetDone(gwpacket.InternalFailure)
			return
		}
		if !pkt.HasDstVpc {
			if dst, ok := info.DstVpc(); ok {
				pkt.DstVpc = dst
				pkt.HasDstVpc = true
			}
		}
		applyTranslation(pkt, t, proto)
		info.Extend(idleTimeout)
		pkt.SetChecksumRefresh()
		pkt.SetNatted()
		return
	}

	if !pkt.HasDstVpc {
		pkt.SetDone(gwpacket.Unroutable)
		return
	}

	pool, ok := pools.Get(nat.PoolKey{SrcVpc: pkt.SrcVpc, DstVpc: pkt.DstVpc})
	if !ok {
		pkt.SetDone(gwpacket.Unroutable)
		return
	}
	newAddr, newPort, err := pool.Allocate(srcPort)
	if err != nil {
		pkt.SetDone(gwpacket.NatFailure)
		return
	}

	expiresAt := time.Now().Add(idleTimeout)
	forward, reverse := flow.RelatedPair(expiresAt)
	forward.SetNatState(translation{addr: newAddr, port: newPort, rewriteDst: false})
	reverse.SetNatState(translation{addr: srcAddr, port: srcPort, rewriteDst: true})
	forward.SetDstVpc(pkt.DstVpc)
	reverse.SetDstVpc(pkt.SrcVpc)

	reverseKey := flow.Key{
		SrcVpc:   pkt.DstVpc,
		SrcAddr:  dstAddr,
		DstAddr:  newAddr,
		SrcPort:  dstPort,
		DstPort:  newPort,
		Protocol: proto,
	}

	flows.Insert(key, forward)
	flows.Insert(reverseKey, reverse)

	applyTranslation(pkt, translation{addr: newAddr, port: newPort, rewriteDst: false}, proto)
	pkt.SetChecksumRefresh()
	pkt.SetNatted()
}

func applyTranslation(pkt *gwpacket.Packet, t translation, proto gwtypes.Protocol) {
	if t.rewriteDst {
		rewriteDstAddr(pkt, t.addr)
		setDstPort(pkt, proto, t.port)
		return
	}
	rewriteSrcAddr(pkt, t.addr)
	setSrcPort(pkt, proto, t.port)
}

// observeTcpTeardown shrinks a flow's remaining lifetime to a short
// closing window once a FIN or RST is seen in either direction, per
// §4.E. It is a hint, not a guarantee of immediate removal.
func observeTcpTeardown(pkt *gwpacket.Packet, flows *flow.Table, key flow.Key) {
	tcp := pkt.TCP()
	if tcp == nil || !(tcp.FIN || tcp.RST) {
		return
	}
	if info, ok := flows.Lookup(key); ok {
		info.Close(DefaultClosingWindow)
		if related, ok := info.Related(); ok {
			related.Close(DefaultClosingWindow)
		}
	}
}

func packetTransport(pkt *gwpacket.Packet) (proto gwtypes.Protocol, srcPort, dstPort uint16, ok bool) {
	if tcp := pkt.TCP(); tcp != nil {
		return gwtypes.ProtocolTCP, uint16(tcp.SrcPort), uint16(tcp.DstPort), true
	}
	if udp := pkt.UDP(); udp != nil {
		return gwtypes.ProtocolUDP, uint16(udp.SrcPort), uint16(udp.DstPort), true
	}
	if icmp4 := pkt.ICMPv4(); icmp4 != nil {
		return gwtypes.ProtocolICMPv4, icmp4.Id, icmp4.Id, true
	}
	if pkt.ICMPv6() != nil {
		return gwtypes.ProtocolICMPv6, 0, 0, true
	}
	return gwtypes.ProtocolOther, 0, 0, false
}

func setSrcPort(pkt *gwpacket.Packet, proto gwtypes.Protocol, port uint16) {
	switch proto {
	case gwtypes.ProtocolTCP:
		if tcp := pkt.TCP(); tcp != nil {
			tcp.SrcPort = layersTCPPort(port)
		}
	case gwtypes.ProtocolUDP:
		if udp := pkt.UDP(); udp != nil {
			udp.SrcPort = layersUDPPort(port)
		}
	case gwtypes.ProtocolICMPv4:
		if icmp4 := pkt.ICMPv4(); icmp4 != nil {
			icmp4.Id = port
		}
	}
}

func setDstPort(pkt *gwpacket.Packet, proto gwtypes.Protocol, port uint16) {
	switch proto {
	case gwtypes.ProtocolTCP:
		if tcp := pkt.TCP(); tcp != nil {
			tcp.DstPort = layersTCPPort(port)
		}
	case gwtypes.ProtocolUDP:
		if udp := pkt.UDP(); udp != nil {
			udp.DstPort = layersUDPPort(port)
		}
	case gwtypes.ProtocolICMPv4:
		if icmp4 := pkt.ICMPv4(); icmp4 != nil {
			icmp4.Id = port
		}
	}
}
