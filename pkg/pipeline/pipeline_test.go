package pipeline

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/hedgehog/gwcore/pkg/flow"
	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/nat"
	"github.com/hedgehog/gwcore/pkg/resolver"
	"github.com/stretchr/testify/require"
)

func buildUdpFrame(t *testing.T, src, dst string, srcPort, dstPort uint16) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("payload"))))
	return buf.Bytes()
}

func parseOn(t *testing.T, raw []byte, iif string) *gwpacket.Packet {
	t.Helper()
	pkt, err := gwpacket.Parse(raw)
	require.NoError(t, err)
	pkt.Iif = iif
	return pkt
}

func singleton(pkt *gwpacket.Packet) func(yield func(*gwpacket.Packet) bool) {
	return func(yield func(*gwpacket.Packet) bool) {
		yield(pkt)
	}
}

func TestPipelineDeliversRoutablePacketAcrossVpcs(t *testing.T) {
	tenantVni, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	remoteVni, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	resolverTables := resolver.NewTables()
	resolverTables.Insert(tenantVni, gwtypes.MustPrefix("10.1.0.0/24"), remoteVni)

	natTables := nat.NewTables()
	natTables.Table(tenantVni) // present with no rules: "configured, nothing to translate"

	routes := NewRouteTables()
	routes.Set(remoteVni, gwtypes.MustPrefix("10.1.0.0/24"), Route{
		Oif:     "vtep-200",
		NextHop: netip.MustParseAddr("192.0.2.10"),
	})

	p := New("ingress",
		Classify(IngressConfig{
			IfaceVpc: map[string]gwtypes.VpcDiscriminant{"tenant0": tenantVni},
			Mac:      net.HardwareAddr{0x02, 0, 0, 0, 0, 0xff},
		}),
		ResolveDstVpc(resolverTables),
		StatelessNat(natTables),
		IpForward(routes),
		Egress(),
		Enforce(),
	)

	pkt := parseOn(t, buildUdpFrame(t, "10.0.0.5", "10.1.0.9", 4444, 53), "tenant0")

	var out []*gwpacket.Packet
	for got := range p.Run(singleton(pkt)) {
		out = append(out, got)
	}

	require.Len(t, out, 1)
	require.Equal(t, gwpacket.Delivered, out[0].Done())
	require.Equal(t, remoteVni, out[0].DstVpc)
	require.Equal(t, "vtep-200", out[0].Oif)
	require.Equal(t, netip.MustParseAddr("192.0.2.10"), out[0].NextHop)
}

func TestPipelineDropsUnresolvableDestinationAsUnroutable(t *testing.T) {
	tenantVni, err := gwtypes.NewVni(100)
	require.NoError(t, err)

	resolverTables := resolver.NewTables()
	natTables := nat.NewTables()
	natTables.Table(tenantVni)
	routes := NewRouteTables()

	p := New("ingress",
		Classify(IngressConfig{IfaceVpc: map[string]gwtypes.VpcDiscriminant{"tenant0": tenantVni}}),
		ResolveDstVpc(resolverTables),
		StatelessNat(natTables),
		IpForward(routes),
		Egress(),
		Enforce(),
	)

	pkt := parseOn(t, buildUdpFrame(t, "10.0.0.5", "203.0.113.9", 4444, 53), "tenant0")

	var out []*gwpacket.Packet
	for got := range p.Run(singleton(pkt)) {
		out = append(out, got)
	}
	require.Empty(t, out, "a packet with no resolved destination VPC never reaches delivery")
}

func TestPipelineDropsUnrecognizedIngressInterface(t *testing.T) {
	resolverTables := resolver.NewTables()
	natTables := nat.NewTables()
	routes := NewRouteTables()

	p := New("ingress",
		Classify(IngressConfig{IfaceVpc: map[string]gwtypes.VpcDiscriminant{}}),
		ResolveDstVpc(resolverTables),
		StatelessNat(natTables),
		IpForward(routes),
		Egress(),
		Enforce(),
	)

	pkt := parseOn(t, buildUdpFrame(t, "10.0.0.5", "10.1.0.9", 4444, 53), "unknown-iface")

	var out []*gwpacket.Packet
	for got := range p.Run(singleton(pkt)) {
		out = append(out, got)
	}
	require.Empty(t, out)
}

func TestStatefulNatAssignsSamePortAcrossRetransmissionsUntilClosed(t *testing.T) {
	srcVni, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	dstVni, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	flows := flow.NewTable()
	pools := nat.NewPoolTables()
	pools.Set(nat.PoolKey{SrcVpc: srcVni, DstVpc: dstVni}, nat.NewPool(
		[]netip.Addr{netip.MustParseAddr("198.51.100.1")}, nil,
	))

	pkt1 := parseOn(t, buildUdpFrame(t, "10.0.0.5", "10.1.0.9", 4444, 53), "tenant0")
	pkt1.SrcVpc = srcVni
	pkt1.DstVpc = dstVni
	pkt1.HasDstVpc = true

	stage := StatefulNat(flows, pools, time.Minute)
	var first []*gwpacket.Packet
	for got := range stage(singleton(pkt1)) {
		first = append(first, got)
	}
	require.Len(t, first, 1)
	require.True(t, first[0].Natted())
	require.Equal(t, "198.51.100.1", first[0].IPv4().SrcIP.String())

	pkt2 := parseOn(t, buildUdpFrame(t, "10.0.0.5", "10.1.0.9", 4444, 53), "tenant0")
	pkt2.SrcVpc = srcVni
	pkt2.DstVpc = dstVni
	pkt2.HasDstVpc = true

	var second []*gwpacket.Packet
	for got := range stage(singleton(pkt2)) {
		second = append(second, got)
	}
	require.Len(t, second, 1)
	require.Equal(t, first[0].IPv4().SrcIP.String(), second[0].IPv4().SrcIP.String())
	require.Equal(t, uint16(first[0].UDP().SrcPort), uint16(second[0].UDP().SrcPort))
}
