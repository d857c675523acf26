package gwpacket

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// ParseError wraps a gopacket decode failure at the Ethernet layer. Any
// failure past Ethernet (an unrecognized ethertype, a truncated IP
// header) is not a ParseError: parsing simply stops there and the
// pipeline operates on whatever was decoded.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse packet: %v", e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }

// Packet is one frame moving through the pipeline: a decoded header
// stack plus the metadata stages attach to it.
type Packet struct {
	raw             gopacket.Packet
	done            Reason
	keep            bool
	natted          bool
	checksumRefresh bool

	Iif       string
	Oif       string
	NextHop   netip.Addr
	SrcVpc    gwtypes.VpcDiscriminant
	DstVpc    gwtypes.VpcDiscriminant
	HasDstVpc bool
}

// Parse decodes buf as an Ethernet frame and walks as much of the header
// graph (VLAN, IPv4/IPv6, the AH/extension chain, TCP/UDP/ICMPv4/ICMPv6)
// as gopacket's layered decoders recognize. An unrecognized ethertype or
// upper-layer protocol halts decoding without error.
func Parse(buf []byte) (*Packet, error) {
	pkt := gopacket.NewPacket(buf, layers.LayerTypeEthernet, gopacket.Default)
	if _, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet); !ok {
		return nil, &ParseError{Cause: fmt.Errorf("malformed ethernet frame")}
	}
	return &Packet{raw: pkt}, nil
}

// Serialize re-encodes the packet's current layers, always fixing up
// lengths, and recomputing L3/L4 checksums only when ChecksumRefresh is set.
func (p *Packet) Serialize() ([]byte, error) {
	var serializable []gopacket.SerializableLayer
	for _, l := range p.raw.Layers() {
		sl, ok := l.(gopacket.SerializableLayer)
		if !ok {
			return nil, fmt.Errorf("layer %s is not serializable", l.LayerType())
		}
		serializable = append(serializable, sl)
	}

	if p.checksumRefresh {
		if nl := p.raw.NetworkLayer(); nl != nil {
			for _, l := range serializable {
				if cl, ok := l.(interface {
					SetNetworkLayerForChecksum(gopacket.NetworkLayer) error
				}); ok {
					if err := cl.SetNetworkLayerForChecksum(nl); err != nil {
						return nil, fmt.Errorf("set checksum network layer: %w", err)
					}
				}
			}
		}
	}

	out := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: p.checksumRefresh}
	if err := gopacket.SerializeLayers(out, opts, serializable...); err != nil {
		return nil, fmt.Errorf("serialize packet: %w", err)
	}
	return out.Bytes(), nil
}

// SetDone marks the packet's terminal state. Once set, later calls are
// no-ops: the first stage to decide a packet's fate wins, and downstream
// stages calling SetDone again (e.g. a generic "else drop" branch) must
// not overwrite a more specific reason already recorded upstream.
func (p *Packet) SetDone(reason Reason) {
	if p.done == ReasonNone {
		p.done = reason
	}
}

// IsDone reports whether a terminal reason has been recorded.
func (p *Packet) IsDone() bool { return p.done != ReasonNone }

// Done returns the recorded terminal reason, or ReasonNone if still in flight.
func (p *Packet) Done() Reason { return p.done }

// SetKeep forces Enforce to pass this packet through even if it is
// done-dropped, for diagnostic sinks that want to observe dropped traffic.
func (p *Packet) SetKeep(keep bool) { p.keep = keep }

// Enforce applies the done-drop invariant: a packet whose done reason is
// anything but Delivered is dropped from the pipeline unless its keep
// flag is set, in which case it is returned unchanged for inspection but
// must not have its headers mutated further.
func (p *Packet) Enforce() (*Packet, bool) {
	if p.done != ReasonNone && p.done != Delivered && !p.keep {
		return nil, false
	}
	return p, true
}

// SetNatted records that some stage already rewrote this packet's
// addresses or ports, so a later NAT stage skips it.
func (p *Packet) SetNatted()   { p.natted = true }
func (p *Packet) Natted() bool { return p.natted }

// SetChecksumRefresh requests that Serialize recompute L3/L4 checksums.
func (p *Packet) SetChecksumRefresh()   { p.checksumRefresh = true }
func (p *Packet) ChecksumRefresh() bool { return p.checksumRefresh }

// Ethernet returns the frame's link-layer header, if decoded.
func (p *Packet) Ethernet() *layers.Ethernet {
	l, _ := p.raw.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	return l
}

// VLAN returns the 802.1Q tag, if present.
func (p *Packet) VLAN() *layers.Dot1Q {
	l, _ := p.raw.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q)
	return l
}

// IPv4 returns the IPv4 header, if this is an IPv4 packet.
func (p *Packet) IPv4() *layers.IPv4 {
	l, _ := p.raw.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	return l
}

// IPv6 returns the IPv6 header, if this is an IPv6 packet.
func (p *Packet) IPv6() *layers.IPv6 {
	l, _ := p.raw.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	return l
}

// TCP returns the TCP header, if present.
func (p *Packet) TCP() *layers.TCP {
	l, _ := p.raw.Layer(layers.LayerTypeTCP).(*layers.TCP)
	return l
}

// UDP returns the UDP header, if present.
func (p *Packet) UDP() *layers.UDP {
	l, _ := p.raw.Layer(layers.LayerTypeUDP).(*layers.UDP)
	return l
}

// ICMPv4 returns the ICMPv4 header, if present.
func (p *Packet) ICMPv4() *layers.ICMPv4 {
	l, _ := p.raw.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	return l
}

// ICMPv6 returns the ICMPv6 header, if present.
func (p *Packet) ICMPv6() *layers.ICMPv6 {
	l, _ := p.raw.Layer(layers.LayerTypeICMPv6).(*layers.ICMPv6)
	return l
}

// IPAuth returns the IPsec Authentication Header, if present in the
// protocol chain (IPv4 protocol 51, or an IPv6 extension header).
func (p *Packet) IPAuth() *layers.IPSecAH {
	l, _ := p.raw.Layer(layers.LayerTypeIPSecAH).(*layers.IPSecAH)
	return l
}

// ApplicationPayload returns whatever bytes remain past the last
// recognized header, if any.
func (p *Packet) ApplicationPayload() []byte {
	if al := p.raw.ApplicationLayer(); al != nil {
		return al.Payload()
	}
	return nil
}

// TotalLen returns the on-wire length of the packet as captured.
func (p *Packet) TotalLen() int { return len(p.raw.Data()) }
