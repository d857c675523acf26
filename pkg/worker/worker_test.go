package worker

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/log"
	"github.com/stretchr/testify/require"
)

type fakeNic struct {
	name    string
	written [][]byte
	closed  bool
}

func (n *fakeNic) Name() string { return n.name }
func (n *fakeNic) ReadBatch(max int) ([][]byte, error) { return nil, nil }
func (n *fakeNic) Write(buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	n.written = append(n.written, cp)
	return nil
}
func (n *fakeNic) Close() error { n.closed = true; return nil }

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

func TestFramesSeqSkipsUnparseableFrames(t *testing.T) {
	bufs := [][]byte{{0x00}, buildFrame(t)}
	logger := log.WithComponent("worker-test")

	var got []*gwpacket.Packet
	for pkt := range framesSeq(bufs, "eth0", logger) {
		got = append(got, pkt)
	}

	require.Len(t, got, 1)
	require.Equal(t, "eth0", got[0].Iif)
}

func TestFramesSeqStopsWhenConsumerStops(t *testing.T) {
	bufs := [][]byte{buildFrame(t), buildFrame(t), buildFrame(t)}
	logger := log.WithComponent("worker-test")

	count := 0
	for range framesSeq(bufs, "eth0", logger) {
		count++
		break
	}

	require.Equal(t, 1, count)
}

func TestTransmitWritesToKnownOif(t *testing.T) {
	nic := &fakeNic{name: "eth1"}
	w := &Worker{
		cfg:    Config{AllNics: map[string]Nic{"eth1": nic}},
		logger: log.WithComponent("worker-test"),
	}

	pkt, err := gwpacket.Parse(buildFrame(t))
	require.NoError(t, err)
	pkt.Oif = "eth1"

	w.transmit(pkt)

	require.Len(t, nic.written, 1)
}

func TestTransmitDropsUnknownOif(t *testing.T) {
	w := &Worker{
		cfg:    Config{AllNics: map[string]Nic{}},
		logger: log.WithComponent("worker-test"),
	}

	pkt, err := gwpacket.Parse(buildFrame(t))
	require.NoError(t, err)
	pkt.Oif = "eth9"

	require.NotPanics(t, func() { w.transmit(pkt) })
}

func TestTransmitSkipsPacketWithNoOif(t *testing.T) {
	nic := &fakeNic{name: "eth1"}
	w := &Worker{
		cfg:    Config{AllNics: map[string]Nic{"eth1": nic}},
		logger: log.WithComponent("worker-test"),
	}

	pkt, err := gwpacket.Parse(buildFrame(t))
	require.NoError(t, err)

	w.transmit(pkt)

	require.Empty(t, nic.written)
}

func TestRebuildIsNoopBeforeAnyConfigApplied(t *testing.T) {
	store, err := gwconfig.OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	proc := gwconfig.NewProcessor(store, nil, nil, nil)

	w := New(0, Config{Proc: proc})

	require.NoError(t, w.rebuild())
	require.Nil(t, w.pipeline.Load())
}
