// Package stats is the per-VPC and per-peering statistics sink: a pipeline
// stage records every packet's terminal outcome into a Sink, which mirrors
// running totals into pkg/metrics and, at export time, derives packet
// rates by differencing the current totals against a timestamped history.
//
// The Sink is reconciled on every configuration apply: VPCs and peerings
// that no longer exist have their counters removed rather than left to
// report a frozen value forever.
package stats
