package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dataplane metrics, updated by pkg/stats on every packet.
	VpcRxPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_vpc_rx_packets_total",
			Help: "Packets received per VPC",
		},
		[]string{"vpc"},
	)

	VpcRxBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_vpc_rx_bytes_total",
			Help: "Bytes received per VPC",
		},
		[]string{"vpc"},
	)

	VpcTxPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_vpc_tx_packets_total",
			Help: "Packets transmitted per VPC",
		},
		[]string{"vpc"},
	)

	VpcTxBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_vpc_tx_bytes_total",
			Help: "Bytes transmitted per VPC",
		},
		[]string{"vpc"},
	)

	PeeringPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_peering_packets_total",
			Help: "Delivered packets between a source and destination VPC",
		},
		[]string{"src_vpc", "dst_vpc"},
	)

	PeeringBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_peering_bytes_total",
			Help: "Delivered bytes between a source and destination VPC",
		},
		[]string{"src_vpc", "dst_vpc"},
	)

	PeeringPacketsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_peering_packets_dropped_total",
			Help: "Dropped packets between a source and destination VPC, by reason",
		},
		[]string{"src_vpc", "dst_vpc", "reason"},
	)

	PeeringBytesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_peering_bytes_dropped_total",
			Help: "Dropped bytes between a source and destination VPC, by reason",
		},
		[]string{"src_vpc", "dst_vpc", "reason"},
	)

	// Flow table metrics.
	FlowTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatewayd_flow_table_entries",
			Help: "Current number of entries in the flow table",
		},
	)

	FlowScavengeEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewayd_flow_scavenge_evicted_total",
			Help: "Total flow table entries removed by the scavenger",
		},
	)

	// NAT pool metrics.
	NatPoolPortsInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gatewayd_nat_pool_ports_in_use",
			Help: "Ports currently allocated per masquerade pool",
		},
		[]string{"pool"},
	)

	NatAllocationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_nat_allocation_failures_total",
			Help: "Stateful NAT allocation failures (pool exhaustion), by pool",
		},
		[]string{"pool"},
	)

	// Reconciler metrics.
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatewayd_reconciliation_duration_seconds",
			Help:    "Time taken for a full reconciliation loop (all passes) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationPasses = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatewayd_reconciliation_passes",
			Help:    "Number of passes a reconciliation loop took to converge",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 30},
		},
	)

	ReconcileRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_reconcile_requests_total",
			Help: "Netlink requests issued by the reconciler, by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Configuration processor metrics.
	ConfigApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatewayd_config_apply_duration_seconds",
			Help:    "Time taken to validate, derive and apply a configuration",
			Buckets: prometheus.DefBuckets,
		},
	)

	ConfigApplyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayd_config_apply_total",
			Help: "Configuration apply attempts by result",
		},
		[]string{"result"},
	)

	ConfigCurrentGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatewayd_config_current_generation",
			Help: "GenId of the currently live configuration",
		},
	)

	// FRR control channel metrics.
	FrrProbeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewayd_frr_probe_failures_total",
			Help: "Total failed liveness probes against the routing daemon",
		},
	)

	// Statistics sink rate gauges, recomputed at export time by
	// differencing the current counters against the previous export's
	// timestamped snapshot; see pkg/stats.
	VpcRxPacketsPerSecond = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gatewayd_vpc_rx_packets_per_second",
			Help: "Packet rate received per VPC, derived at export time",
		},
		[]string{"vpc"},
	)

	VpcTxPacketsPerSecond = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gatewayd_vpc_tx_packets_per_second",
			Help: "Packet rate transmitted per VPC, derived at export time",
		},
		[]string{"vpc"},
	)

	PeeringPacketsPerSecond = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gatewayd_peering_packets_per_second",
			Help: "Delivered packet rate between a source and destination VPC, derived at export time",
		},
		[]string{"src_vpc", "dst_vpc"},
	)

	PeeringPacketsDroppedPerSecond = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gatewayd_peering_packets_dropped_per_second",
			Help: "Dropped packet rate between a source and destination VPC, derived at export time",
		},
		[]string{"src_vpc", "dst_vpc"},
	)
)

func init() {
	prometheus.MustRegister(
		VpcRxPackets, VpcRxBytes, VpcTxPackets, VpcTxBytes,
		PeeringPackets, PeeringBytes, PeeringPacketsDropped, PeeringBytesDropped,
		FlowTableSize, FlowScavengeEvictedTotal,
		NatPoolPortsInUse, NatAllocationFailuresTotal,
		ReconciliationDuration, ReconciliationPasses, ReconcileRequestsTotal,
		ConfigApplyDuration, ConfigApplyTotal, ConfigCurrentGeneration,
		FrrProbeFailuresTotal,
		VpcRxPacketsPerSecond, VpcTxPacketsPerSecond,
		PeeringPacketsPerSecond, PeeringPacketsDroppedPerSecond,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
