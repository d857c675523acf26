package stats

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func buildFrame(t *testing.T) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP("10.0.0.1").To4(),
		DstIP:    net.ParseIP("10.0.0.2").To4(),
	}
	udp := &layers.UDP{SrcPort: 1111, DstPort: 2222}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("hi"))))
	return buf.Bytes()
}

func testPacket(t *testing.T, src, dst gwtypes.VpcDiscriminant, hasDst bool, reason gwpacket.Reason) *gwpacket.Packet {
	t.Helper()
	pkt, err := gwpacket.Parse(buildFrame(t))
	require.NoError(t, err)
	pkt.SrcVpc = src
	pkt.DstVpc = dst
	pkt.HasDstVpc = hasDst
	pkt.SetDone(reason)
	return pkt
}

func TestRecordTracksDeliveredPeeringTraffic(t *testing.T) {
	blue, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	green, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	sink := NewSink()
	sink.Reconcile(map[gwtypes.VpcDiscriminant]string{blue: "blue", green: "green"}, []PeeringPair{{Src: blue, Dst: green}})

	pkt := testPacket(t, blue, green, true, gwpacket.Delivered)
	sink.Record(pkt)

	vpcs, peerings := sink.Snapshot()
	require.Len(t, vpcs, 2)
	require.Len(t, peerings, 1)
	require.Equal(t, uint64(1), peerings[0].Packets)
	require.Equal(t, uint64(0), peerings[0].PacketsDropped)
}

func TestRecordTracksDroppedPeeringTraffic(t *testing.T) {
	blue, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	green, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	sink := NewSink()
	pkt := testPacket(t, blue, green, true, gwpacket.Unroutable)
	sink.Record(pkt)

	_, peerings := sink.Snapshot()
	require.Len(t, peerings, 1)
	require.Equal(t, uint64(0), peerings[0].Packets)
	require.Equal(t, uint64(1), peerings[0].PacketsDropped)
}

func TestRecordIgnoresInFlightPackets(t *testing.T) {
	blue, err := gwtypes.NewVni(100)
	require.NoError(t, err)

	sink := NewSink()
	pkt, err := gwpacket.Parse(buildFrame(t))
	require.NoError(t, err)
	pkt.SrcVpc = blue

	sink.Record(pkt)

	vpcs, _ := sink.Snapshot()
	require.Empty(t, vpcs)
}

func TestReconcileRemovesStaleVpc(t *testing.T) {
	blue, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	green, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	sink := NewSink()
	sink.Record(testPacket(t, blue, green, true, gwpacket.Delivered))

	vpcs, peerings := sink.Snapshot()
	require.Len(t, vpcs, 2)
	require.Len(t, peerings, 1)

	sink.Reconcile(map[gwtypes.VpcDiscriminant]string{blue: "blue"}, nil)

	vpcs, peerings = sink.Snapshot()
	require.Len(t, vpcs, 1)
	require.Equal(t, "blue", vpcs[0].Vpc)
	require.Empty(t, peerings)
}

func TestExportWithoutBaselineYieldsZeroRate(t *testing.T) {
	blue, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	green, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	sink := NewSink()
	sink.Record(testPacket(t, blue, green, true, gwpacket.Delivered))

	require.NotPanics(t, func() { sink.Export(time.Now()) })
	require.Equal(t, 0.0, gaugeValue(t, metrics.PeeringPacketsPerSecond.WithLabelValues(sink.label(blue), sink.label(green))))
}

func TestExportDerivesRateFromSecondSnapshot(t *testing.T) {
	blue, err := gwtypes.NewVni(100)
	require.NoError(t, err)
	green, err := gwtypes.NewVni(200)
	require.NoError(t, err)

	sink := NewSink()
	start := time.Now()
	sink.Record(testPacket(t, blue, green, true, gwpacket.Delivered))
	sink.Export(start)

	for i := 0; i < 10; i++ {
		sink.Record(testPacket(t, blue, green, true, gwpacket.Delivered))
	}
	require.NotPanics(t, func() { sink.Export(start.Add(time.Second)) })
	require.Equal(t, 10.0, gaugeValue(t, metrics.PeeringPacketsPerSecond.WithLabelValues(sink.label(blue), sink.label(green))))
}
