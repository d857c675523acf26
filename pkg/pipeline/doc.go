/*
Package pipeline composes the dataplane stages a packet passes through:
ingress classification, destination-VPC resolution, stateless and
stateful NAT, IP forwarding, and VXLAN egress encapsulation.

A Stage is a pure transformer from one packet iterator to another,
built on the standard library's range-over-func iterators (iter.Seq)
rather than a channel pipeline or a buffering slice-based one: stages
compose by function application, no stage buffers packets internally
unless its own logic demands it (the stateful NAT stage's flow-table
probe, for instance, never buffers -- it decides per packet and yields
immediately), and a caller can stop consuming mid-stream and every stage
upstream observes that the same way ranging over any other Go iterator
would. This is the direct Go counterpart of the iterator-chaining model
spec.md describes.

Packets that reach a terminal drop reason are removed from the stream
by Enforce unless their keep flag is set, in which case they continue
downstream read-only for diagnostic stages to observe.
*/
package pipeline
