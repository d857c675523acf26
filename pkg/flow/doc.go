/*
Package flow implements the gateway's flow table: the fast-path record of
every connection currently traversing the dataplane, consulted before
falling back to pkg/nat's slow-path LPM lookups and pkg/resolver's
destination-VPC resolution.

A Table is sharded by FlowKey hash to bound lock contention across
dataplane workers; each shard is an independent RWMutex-guarded map.
FlowInfo tracks expiry and status with atomics so that a worker can read
and refresh a flow's liveness without taking any lock, and a paired
Related flow (the reverse direction of a bidirectional connection, or a
stateful NAT flow's mirror) is reached through a weak.Pointer so that
scavenging one side does not leak the other.
*/
package flow
