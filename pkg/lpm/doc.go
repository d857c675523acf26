/*
Package lpm implements the longest-prefix-match trie used to key NAT
tables, the destination-VPC resolver, and VRF route derivation.

A Trie is scoped to a single address family (32 or 128 bits) and holds
prefix -> value associations indexed by prefix length. Lookup walks
from the longest possible length down to zero, which keeps each step
O(1) and the whole operation O(bit width) -- the same bound the
original Rust patricia trie offers, without needing path compression
to get there at the table sizes this gateway deals with (at most a
few thousand exposes per VPC).

A Trie has a single writer: pkg/gwconfig builds one per (VPC,
direction) during configuration derivation and then publishes it
read-only to workers by snapshot swap (see Processor.Snapshot in
pkg/gwconfig/processor.go).
Concurrent Insert/Delete calls are not safe; concurrent Lookup calls
against a trie nobody is mutating are.
*/
package lpm
