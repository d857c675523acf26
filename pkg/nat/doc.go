/*
Package nat implements the gateway's two NAT styles: stateless 1:1
address translation driven by exposed-prefix tables, and stateful
masquerade translation backed by an address/port allocator.

Tables is the stateless side: for a given source VPC, an LPM lookup
over the packet's address resolves to a NatTableValue, an ordered run
of address ranges whose combined size matches the originating prefix,
so the Nth address in the source prefix always maps to the Nth address
in the target ranges. Pool is the stateful side: an allocator handed a
set of addresses and, per protocol, a 256x256 high-byte/low-byte port
occupancy grid per address, used to hand out a free (address, port)
pair in amortized O(1) and to release it later when a flow expires.

PortFwTable holds operator-configured port-forwarding rules keyed by
(source VPC, destination address, protocol) and external port. Nothing
else in this module populates or consults it; pkg/gwconfig uses the
exposes' port ranges only to reserve ports in the masquerade pools.
*/
package nat
