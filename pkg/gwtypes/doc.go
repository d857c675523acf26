/*
Package gwtypes defines the core value types shared across the gateway
dataplane: the VPC discriminant, address-family-tagged prefixes and
ranges, the protocol enumeration, and the monotonic configuration
generation id.

These types carry validation, construction and address/port arithmetic
(containment, overlap, cardinality, offsets) and nothing more, so
that two packages never define competing notions of "VPC" or
"prefix". pkg/lpm, pkg/nat, pkg/flow, pkg/resolver, pkg/gwpacket,
pkg/reconciler and pkg/gwconfig all build on top of it.
*/
package gwtypes
