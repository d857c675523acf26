/*
Package resolver determines which VPC a packet is destined for, per
source VPC, from the set of prefixes peering has exposed to it.

Tables holds, for each source VPC, an LPM trie from remote-exposed
prefix to the VPC discriminant that owns it. Two peerings can expose
overlapping prefixes to the same source VPC with different owners; when
that happens the colliding prefixes are marked ambiguous (Lookup returns
found=true, ambiguous=true) rather than picking one arbitrarily, since a
wrong guess would silently misroute traffic between tenants.

CollapseExposes implements the prefix bookkeeping needed before prefixes
ever reach the table: a peering's exposed addresses are given as an
include list and an exclude list (VpcExpose's ips/not), and must be
reduced to a minimal, exclusion-free, merged set of prefixes before
insertion. The function is idempotent: collapsing an already-collapsed
set returns it unchanged.
*/
package resolver
