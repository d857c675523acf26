package stats

import (
	"sync"
	"time"

	"github.com/hedgehog/gwcore/pkg/gwpacket"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/metrics"
)

// PeeringPair names a directed VPC-to-VPC relationship, the same shape
// pkg/gwconfig derives per peering.
type PeeringPair struct {
	Src gwtypes.VpcDiscriminant
	Dst gwtypes.VpcDiscriminant
}

type vpcCounters struct {
	rxPkts, rxBytes uint64
	txPkts, txBytes uint64
}

type peeringCounters struct {
	pkts, bytes               uint64
	pktsDropped, bytesDropped uint64
	dropReasons               map[gwpacket.Reason]bool
}

type snapshot struct {
	at      time.Time
	vpc     map[gwtypes.VpcDiscriminant]vpcCounters
	peering map[PeeringPair]peeringCounters
}

// Sink is the per-VPC/per-peering statistics collector of §4.K: every
// packet's terminal disposition is folded in via Record, mirrored
// immediately into pkg/metrics' cumulative counters, and read back out at
// export time to derive a rate.
type Sink struct {
	mu sync.Mutex

	names   map[gwtypes.VpcDiscriminant]string
	vpc     map[gwtypes.VpcDiscriminant]*vpcCounters
	peering map[PeeringPair]*peeringCounters

	last snapshot
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{
		names:   make(map[gwtypes.VpcDiscriminant]string),
		vpc:     make(map[gwtypes.VpcDiscriminant]*vpcCounters),
		peering: make(map[PeeringPair]*peeringCounters),
		last:    snapshot{at: time.Time{}},
	}
}

func (s *Sink) label(disc gwtypes.VpcDiscriminant) string {
	if name, ok := s.names[disc]; ok {
		return name
	}
	return disc.String()
}

func (s *Sink) vpcEntry(disc gwtypes.VpcDiscriminant) *vpcCounters {
	c, ok := s.vpc[disc]
	if !ok {
		c = &vpcCounters{}
		s.vpc[disc] = c
	}
	return c
}

func (s *Sink) peeringEntry(pair PeeringPair) *peeringCounters {
	c, ok := s.peering[pair]
	if !ok {
		c = &peeringCounters{dropReasons: make(map[gwpacket.Reason]bool)}
		s.peering[pair] = c
	}
	return c
}

// Record folds one packet's terminal disposition into the sink. Packets
// still in flight (no terminal reason recorded) are ignored -- this is
// meant to run as the pipeline's final observation stage, after Egress
// but before Enforce discards anything not kept.
func (s *Sink) Record(pkt *gwpacket.Packet) {
	if !pkt.IsDone() {
		return
	}
	bytes := uint64(pkt.TotalLen())
	delivered := pkt.Done() == gwpacket.Delivered

	s.mu.Lock()
	defer s.mu.Unlock()

	if !pkt.SrcVpc.IsZero() {
		c := s.vpcEntry(pkt.SrcVpc)
		c.txPkts++
		c.txBytes += bytes
		metrics.VpcTxPackets.WithLabelValues(s.label(pkt.SrcVpc)).Inc()
		metrics.VpcTxBytes.WithLabelValues(s.label(pkt.SrcVpc)).Add(float64(bytes))
	}
	if pkt.HasDstVpc {
		c := s.vpcEntry(pkt.DstVpc)
		c.rxPkts++
		c.rxBytes += bytes
		metrics.VpcRxPackets.WithLabelValues(s.label(pkt.DstVpc)).Inc()
		metrics.VpcRxBytes.WithLabelValues(s.label(pkt.DstVpc)).Add(float64(bytes))
	}

	if !pkt.SrcVpc.IsZero() && pkt.HasDstVpc {
		pair := PeeringPair{Src: pkt.SrcVpc, Dst: pkt.DstVpc}
		c := s.peeringEntry(pair)
		srcLabel, dstLabel := s.label(pkt.SrcVpc), s.label(pkt.DstVpc)
		if delivered {
			c.pkts++
			c.bytes += bytes
			metrics.PeeringPackets.WithLabelValues(srcLabel, dstLabel).Inc()
			metrics.PeeringBytes.WithLabelValues(srcLabel, dstLabel).Add(float64(bytes))
		} else {
			c.pktsDropped++
			c.bytesDropped += bytes
			c.dropReasons[pkt.Done()] = true
			metrics.PeeringPacketsDropped.WithLabelValues(srcLabel, dstLabel, pkt.Done().String()).Inc()
			metrics.PeeringBytesDropped.WithLabelValues(srcLabel, dstLabel, pkt.Done().String()).Add(float64(bytes))
		}
	}
}

// Reconcile is called on every configuration apply: it replaces the
// known name set and removes counters (both the sink's own and the
// mirrored Prometheus series) for any VPC or peering no longer present.
func (s *Sink) Reconcile(names map[gwtypes.VpcDiscriminant]string, peerings []PeeringPair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[PeeringPair]bool, len(peerings))
	for _, p := range peerings {
		known[p] = true
	}

	for disc := range s.vpc {
		if _, ok := names[disc]; ok {
			continue
		}
		label := s.label(disc)
		metrics.VpcRxPackets.DeleteLabelValues(label)
		metrics.VpcRxBytes.DeleteLabelValues(label)
		metrics.VpcTxPackets.DeleteLabelValues(label)
		metrics.VpcTxBytes.DeleteLabelValues(label)
		metrics.VpcRxPacketsPerSecond.DeleteLabelValues(label)
		metrics.VpcTxPacketsPerSecond.DeleteLabelValues(label)
		delete(s.vpc, disc)
	}

	for pair, c := range s.peering {
		if known[pair] {
			continue
		}
		srcLabel, dstLabel := s.label(pair.Src), s.label(pair.Dst)
		metrics.PeeringPackets.DeleteLabelValues(srcLabel, dstLabel)
		metrics.PeeringBytes.DeleteLabelValues(srcLabel, dstLabel)
		metrics.PeeringPacketsPerSecond.DeleteLabelValues(srcLabel, dstLabel)
		metrics.PeeringPacketsDroppedPerSecond.DeleteLabelValues(srcLabel, dstLabel)
		for reason := range c.dropReasons {
			metrics.PeeringPacketsDropped.DeleteLabelValues(srcLabel, dstLabel, reason.String())
			metrics.PeeringBytesDropped.DeleteLabelValues(srcLabel, dstLabel, reason.String())
		}
		delete(s.peering, pair)
	}

	s.names = names
}

// Export derives packet-rate gauges by differencing the current totals
// against the previous call's timestamped snapshot, publishes them into
// pkg/metrics, and advances the history. The first call after process
// start (or after a long gap) has nothing to difference against and
// publishes a zero rate.
func (s *Sink) Export(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.last.at).Seconds()
	haveBaseline := !s.last.at.IsZero() && elapsed > 0

	for disc, c := range s.vpc {
		label := s.label(disc)
		var rxRate, txRate float64
		if haveBaseline {
			prev := s.last.vpc[disc]
			rxRate = float64(c.rxPkts-prev.rxPkts) / elapsed
			txRate = float64(c.txPkts-prev.txPkts) / elapsed
		}
		metrics.VpcRxPacketsPerSecond.WithLabelValues(label).Set(rxRate)
		metrics.VpcTxPacketsPerSecond.WithLabelValues(label).Set(txRate)
	}

	for pair, c := range s.peering {
		srcLabel, dstLabel := s.label(pair.Src), s.label(pair.Dst)
		var pktRate, dropRate float64
		if haveBaseline {
			prev := s.last.peering[pair]
			pktRate = float64(c.pkts-prev.pkts) / elapsed
			dropRate = float64(c.pktsDropped-prev.pktsDropped) / elapsed
		}
		metrics.PeeringPacketsPerSecond.WithLabelValues(srcLabel, dstLabel).Set(pktRate)
		metrics.PeeringPacketsDroppedPerSecond.WithLabelValues(srcLabel, dstLabel).Set(dropRate)
	}

	s.last = s.snapshotLocked(now)
}

func (s *Sink) snapshotLocked(at time.Time) snapshot {
	vpc := make(map[gwtypes.VpcDiscriminant]vpcCounters, len(s.vpc))
	for disc, c := range s.vpc {
		vpc[disc] = *c
	}
	peering := make(map[PeeringPair]peeringCounters, len(s.peering))
	for pair, c := range s.peering {
		peering[pair] = *c
	}
	return snapshot{at: at, vpc: vpc, peering: peering}
}

// VpcSnapshot is a read-only view of one VPC's cumulative counters,
// returned by Snapshot for a CLI or API consumer.
type VpcSnapshot struct {
	Vpc                string
	RxPackets, RxBytes uint64
	TxPackets, TxBytes uint64
}

// PeeringSnapshot is a read-only view of one peering's cumulative counters.
type PeeringSnapshot struct {
	Src, Dst                     string
	Packets, Bytes               uint64
	PacketsDropped, BytesDropped uint64
}

// Snapshot returns the current cumulative counters for every known VPC
// and peering, independent of the rate-derivation history Export keeps.
func (s *Sink) Snapshot() ([]VpcSnapshot, []PeeringSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vpcs := make([]VpcSnapshot, 0, len(s.vpc))
	for disc, c := range s.vpc {
		vpcs = append(vpcs, VpcSnapshot{
			Vpc:       s.label(disc),
			RxPackets: c.rxPkts, RxBytes: c.rxBytes,
			TxPackets: c.txPkts, TxBytes: c.txBytes,
		})
	}
	peerings := make([]PeeringSnapshot, 0, len(s.peering))
	for pair, c := range s.peering {
		peerings = append(peerings, PeeringSnapshot{
			Src: s.label(pair.Src), Dst: s.label(pair.Dst),
			Packets: c.pkts, Bytes: c.bytes,
			PacketsDropped: c.pktsDropped, BytesDropped: c.bytesDropped,
		})
	}
	return vpcs, peerings
}
