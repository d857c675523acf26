/*
Package worker runs the dataplane proper: each Worker reads frames on
its network interfaces (one goroutine per interface), pushes them
through its own pipeline.Pipeline, and writes the survivors back out.
Workers share the flow table and statistics sink they are given. It is the
reader side of the configuration snapshot handoff pkg/gwconfig's
Processor.Snapshot documents -- a Worker never blocks Apply and Apply
never blocks a Worker, since both sides only ever touch an
atomic.Pointer.

Route information (which prefix leaves through which interface, toward
which next hop) is not part of gwconfig.Internal: that table is
populated by the routing daemon pkg/frr talks to and observed back out
of the kernel's per-VRF FIB with vishvananda/netlink, the same library
pkg/reconciler uses to program interfaces. A Worker rebuilds its route
tables whenever the configuration generation changes, alongside the
rest of the pipeline.
*/
package worker
