/*
Package metrics provides Prometheus metrics collection and exposition for the
gateway daemon, plus the health, readiness and liveness state served next to it.

The metrics package defines and registers the gatewayd_* metrics using the
Prometheus client library, covering per-VPC and per-peering traffic, drops,
reconciliation, configuration apply and routing-daemon probes. Metrics are
exposed via an HTTP endpoint for scraping by Prometheus servers.

# Architecture

The metrics system is a set of package-level collectors registered with the
default Prometheus registry:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (node count)         │          │
	│  │  Counter: Monotonic increases (requests)    │          │
	│  │  Histogram: Distributions (latency)         │          │
	│  │  Summary: Quantiles (percentiles)           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Dataplane: VPC and peering traffic, drops  │          │
	│  │  Rates: per-second gauges from pkg/stats    │          │
	│  │  Flow table: entries, scavenger evictions   │          │
	│  │  NAT pools: ports in use, alloc failures    │          │
	│  │  Reconciler: duration, passes, requests     │          │
	│  │  Config: apply duration, result, generation │          │
	│  │  FRR: probe failures                        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics every 15s               │          │
	│  │  - Stores time series data                  │          │
	│  │  - Provides PromQL query interface          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: flow table entries, current config generation
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: packets received per VPC, config apply attempts
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: reconciliation duration, config apply duration
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Dataplane Metrics (set by pkg/stats):

gatewayd_vpc_rx_packets_total{vpc}, gatewayd_vpc_rx_bytes_total{vpc}:
  - Type: Counter
  - Description: Packets and bytes received per VPC

gatewayd_vpc_tx_packets_total{vpc}, gatewayd_vpc_tx_bytes_total{vpc}:
  - Type: Counter
  - Description: Packets and bytes transmitted per VPC

gatewayd_peering_packets_total{src_vpc, dst_vpc}, gatewayd_peering_bytes_total{src_vpc, dst_vpc}:
  - Type: Counter
  - Description: Delivered packets and bytes between a source and destination VPC

gatewayd_peering_packets_dropped_total{src_vpc, dst_vpc, reason}, gatewayd_peering_bytes_dropped_total{src_vpc, dst_vpc, reason}:
  - Type: Counter
  - Description: Dropped packets and bytes between two VPCs, by drop reason

Rate Gauges (set by pkg/stats at export time):

gatewayd_vpc_rx_packets_per_second{vpc}, gatewayd_vpc_tx_packets_per_second{vpc}:
  - Type: Gauge
  - Description: Per-VPC packet rates

gatewayd_peering_packets_per_second{src_vpc, dst_vpc}, gatewayd_peering_packets_dropped_per_second{src_vpc, dst_vpc}:
  - Type: Gauge
  - Description: Delivered and dropped packet rates between two VPCs

Flow Table and NAT Pool Metrics:

gatewayd_flow_table_entries:
  - Type: Gauge
  - Description: Current number of entries in the flow table

gatewayd_flow_scavenge_evicted_total:
  - Type: Counter
  - Description: Flow table entries removed by the scavenger

gatewayd_nat_pool_ports_in_use{pool}:
  - Type: Gauge
  - Description: Ports currently allocated per masquerade pool

gatewayd_nat_allocation_failures_total{pool}:
  - Type: Counter
  - Description: Stateful NAT allocation failures, by pool

These four are registered and exported, but no package in this module
sets them, so they stay at zero or absent.

Reconciler Metrics (set by pkg/reconciler):

gatewayd_reconciliation_duration_seconds:
  - Type: Histogram
  - Description: Time taken for a full reconciliation loop, all passes included
  - Buckets: Default Prometheus buckets

gatewayd_reconciliation_passes:
  - Type: Histogram
  - Description: Number of passes a reconciliation loop took to converge
  - Buckets: 1, 2, 3, 5, 8, 13, 21, 30

gatewayd_reconcile_requests_total{kind, result}:
  - Type: Counter
  - Description: Netlink requests issued by the reconciler, by kind and result

Configuration Metrics (set by pkg/gwconfig):

gatewayd_config_apply_duration_seconds:
  - Type: Histogram
  - Description: Time taken to validate, derive and apply a configuration
  - Buckets: Default Prometheus buckets

gatewayd_config_apply_total{result}:
  - Type: Counter
  - Description: Configuration apply attempts by result

gatewayd_config_current_generation:
  - Type: Gauge
  - Description: GenId of the currently live configuration

Routing Daemon Metrics (set by pkg/frr):

gatewayd_frr_probe_failures_total:
  - Type: Counter
  - Description: Failed liveness probes against the routing daemon

# Usage

Updating Counter Metrics:

	import "github.com/hedgehog/gwcore/pkg/metrics"

	metrics.VpcRxPackets.WithLabelValues("100").Inc()
	metrics.VpcRxBytes.WithLabelValues("100").Add(1500)

Updating Gauge Metrics:

	metrics.ConfigCurrentGeneration.Set(7)

Recording Histogram Observations:

	// Direct observation
	metrics.ReconciliationPasses.Observe(3)

	// Using Timer helper
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.ConfigApplyDuration)

Using Timer with Labels:

	// ObserveDurationVec takes any prometheus.ObserverVec (a HistogramVec
	// or SummaryVec) and the label values to observe under.
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(someHistogramVec, "label-value")

Health and Readiness:

	metrics.SetVersion("v1.2.3")
	metrics.RegisterComponent("reconciler", true, "")
	metrics.UpdateComponent("frr", false, "probe failed")

GetHealth reports "healthy" unless some registered component is
unhealthy, in which case it reports "unhealthy" and HealthHandler answers
503. GetReadiness reports "ready" only when the reconciler, frr and api
components are all registered and healthy; otherwise it reports
"not_ready" and ReadyHandler answers 503. LivenessHandler always answers
200 with the process uptime.

# Integration Points

This package integrates with:

  - pkg/stats: Sets the dataplane counters and rate gauges
  - pkg/reconciler: Records reconciliation duration, passes and requests
  - pkg/gwconfig: Records config apply duration, result and generation
  - pkg/frr: Counts failed routing-daemon probes
  - pkg/api: Serves Handler() at /metrics
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()
  - No runtime registration needed

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (IDs, timestamps)
  - Document label values in metric description
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Automatically calculates elapsed time
  - Supports both simple and vector histograms

Global Metrics:
  - Package-level variables for all metrics
  - Accessible from any package
  - Thread-safe concurrent updates
  - No initialization required by callers

# Performance Characteristics

Metric Update Overhead:
  - Gauge set/inc: ~50ns per operation
  - Counter inc: ~50ns per operation
  - Histogram observe: ~200ns per operation
  - Labels: +100ns per label value
  - Negligible impact on hot path

Memory Usage:
  - Per metric: ~1KB baseline
  - Per label combination: ~100 bytes
  - Histogram buckets: ~50 bytes each
  - Grows with the number of VPCs and VPC pairs seen

Scrape Performance:
  - Metrics gathering: ~1-5ms for full scrape
  - HTTP response: ~10ms for typical metric set
  - Recommendation: Scrape interval ≥ 15s
  - Concurrent scrapes: Safe (read-only)

Cardinality Management:
  - Low cardinality: result, kind, reason, pool
  - Grows with configuration: vpc, and src_vpc x dst_vpc pairs
  - Avoid: addresses, ports, timestamps (unbounded)
  - Best practice: Aggregate high-cardinality in logs

# Troubleshooting

Common Issues:

Missing Metrics:
  - Symptom: Metric not appearing in /metrics output
  - Check: Metric registered in init() function
  - Check: MustRegister called (panics if duplicate)
  - Solution: Verify metric variable is exported

High Cardinality:
  - Symptom: Prometheus memory usage grows
  - Cause: Using IDs or unbounded values as labels
  - Check: Label cardinality (count unique combinations)
  - Solution: Remove high-cardinality labels, aggregate differently

Histogram Bucket Mismatch:
  - Symptom: No data in desired percentiles
  - Cause: Buckets don't cover observed value range
  - Check: Histogram sum / count for average
  - Solution: Customize buckets for value range

Stale Metrics:
  - Symptom: Metrics not updating
  - Cause: Code not calling metric update methods
  - Check: Add logging around metric updates
  - Solution: Instrument code paths correctly

# Monitoring

Prometheus Queries (PromQL):

Traffic:
  - Receive rate per VPC: rate(gatewayd_vpc_rx_packets_total[1m])
  - Delivered rate per peering: rate(gatewayd_peering_packets_total[1m])
  - Drops by reason: sum by (reason) (rate(gatewayd_peering_packets_dropped_total[5m]))

Reconciliation:
  - p95 loop duration: histogram_quantile(0.95, gatewayd_reconciliation_duration_seconds_bucket)
  - Failed netlink requests: rate(gatewayd_reconcile_requests_total{result!="ok"}[5m])

Configuration:
  - Live generation: gatewayd_config_current_generation
  - Apply attempts by result: rate(gatewayd_config_apply_total[5m])

Routing Daemon:
  - Probe failures: rate(gatewayd_frr_probe_failures_total[5m])

# Alerting Rules

Example Prometheus alerts:

Rising Drop Rate:
  - Alert: sum(rate(gatewayd_peering_packets_dropped_total[5m])) > 100
  - Description: More than 100 packets dropped per second across peerings
  - Action: Break down by reason and VPC pair

Slow Reconciliation:
  - Alert: histogram_quantile(0.95, gatewayd_reconciliation_duration_seconds_bucket) > 5
  - Description: p95 reconciliation loop longer than 5 seconds
  - Action: Check reconcile request failures and the kernel's netlink load

Routing Daemon Unreachable:
  - Alert: increase(gatewayd_frr_probe_failures_total[5m]) > 0
  - Description: Liveness probes against the routing daemon are failing
  - Action: Check the routing daemon's process and control socket

# Grafana Dashboards

Example dashboard panels:

Traffic:
  - Time series: Packets per second per VPC, received and transmitted
  - Time series: Delivered and dropped packets per VPC pair
  - Table: Drops by reason

Control Plane:
  - Single stat: Live configuration generation
  - Time series: Config apply attempts by result
  - Heatmap: Reconciliation duration
  - Time series: Routing daemon probe failures

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - PromQL tutorial: https://prometheus.io/docs/prometheus/latest/querying/basics/
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
