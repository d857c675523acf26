/*
Package gwpacket is the pipeline's packet and metadata model: a parsed
header stack plus the side-band fields each stage reads and writes
(input/output interface, source and destination VPC, the NAT-applied and
checksum-refresh flags, and a terminal "done" reason).

Parsing is layered on top of gopacket/layers rather than hand-rolled: the
header graph this gateway needs -- Ethernet, optionally VLAN, IPv4 or
IPv6 with its extension/AH chain, then TCP/UDP/ICMPv4/ICMPv6 -- is
exactly gopacket's decoding layer stack, so Packet wraps a decoded
gopacket.Packet and layers typed accessors and the done-reason state
machine on top of it. Once a packet is marked done, no stage may mutate
its headers again; Enforce is the single choke point that turns that
invariant into a value every stage composition must pass through.
*/
package gwpacket
