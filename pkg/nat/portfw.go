package nat

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

const (
	// DefaultInitialTimeout bounds how long a port-forwarding flow may sit
	// unacknowledged before the flow table scavenges it.
	DefaultInitialTimeout = 3 * time.Second
	// DefaultEstablishedTimeout bounds an established port-forwarding flow's idle time.
	DefaultEstablishedTimeout = 3 * time.Minute
)

// PortFwKey identifies the (source VPC, destination address, protocol)
// tuple a port-forwarding rule is attached to. Lookup by key plus an
// external port narrows to the single matching PortFwEntry.
type PortFwKey struct {
	SrcVpc gwtypes.VpcDiscriminant
	DstIp  netip.Addr
	Proto  gwtypes.Protocol
}

func (k PortFwKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.SrcVpc, k.DstIp, k.Proto)
}

// PortFwEntry is one configured port-forwarding rule: packets arriving for
// SrcVpc/DstIp/Proto on a port within ExtPorts are rewritten to TargetIp
// in DstVpc, at the corresponding offset within DstPorts.
type PortFwEntry struct {
	Key              PortFwKey
	DstVpc           gwtypes.VpcDiscriminant
	TargetIp         netip.Addr
	ExtPorts         gwtypes.PortRange
	DstPorts         gwtypes.PortRange
	InitialTimeout   time.Duration
	EstablishedTimeout time.Duration
}

// NewPortFwEntry validates and constructs a rule.
func NewPortFwEntry(key PortFwKey, dstVpc gwtypes.VpcDiscriminant, targetIp netip.Addr, extPorts, dstPorts gwtypes.PortRange, initTimeout, estabTimeout time.Duration) (PortFwEntry, error) {
	if key.SrcVpc == dstVpc {
		return PortFwEntry{}, fmt.Errorf("nat: port-forwarding within the same vpc is not supported")
	}
	if key.DstIp.Is4() != targetIp.Is4() {
		return PortFwEntry{}, fmt.Errorf("nat: port-forwarding across address families is not supported")
	}
	if extPorts.Cardinality() != dstPorts.Cardinality() {
		return PortFwEntry{}, fmt.Errorf("nat: external range %s and target range %s have different sizes", extPorts, dstPorts)
	}
	if initTimeout <= 0 {
		initTimeout = DefaultInitialTimeout
	}
	if estabTimeout <= 0 {
		estabTimeout = DefaultEstablishedTimeout
	}
	return PortFwEntry{
		Key:                key,
		DstVpc:             dstVpc,
		TargetIp:           targetIp,
		ExtPorts:           extPorts,
		DstPorts:           dstPorts,
		InitialTimeout:     initTimeout,
		EstablishedTimeout: estabTimeout,
	}, nil
}

// matches reports whether two entries describe the same rule, ignoring timeouts.
func (e PortFwEntry) matches(other PortFwEntry) bool {
	return e.Key == other.Key && e.DstVpc == other.DstVpc && e.TargetIp == other.TargetIp &&
		e.ExtPorts == other.ExtPorts && e.DstPorts == other.DstPorts
}

// Translate maps an external port hit by this rule to the corresponding
// target port, preserving the port's offset within the range.
func (e PortFwEntry) Translate(extPort uint16) (netip.Addr, uint16, bool) {
	if !e.ExtPorts.Contains(extPort) {
		return netip.Addr{}, 0, false
	}
	offset := extPort - e.ExtPorts.Start
	return e.TargetIp, e.DstPorts.Start + offset, true
}

// portFwGroup holds every rule sharing a PortFwKey; multiple rules are
// allowed so long as their external port ranges don't collide, enabling
// simple port-range based load distribution across destination VPCs.
type portFwGroup struct {
	entries []PortFwEntry
}

func (g *portFwGroup) addOrUpdate(e PortFwEntry) {
	for i, existing := range g.entries {
		if existing.matches(e) {
			g.entries[i] = e
			return
		}
	}
	g.entries = append(g.entries, e)
}

func (g *portFwGroup) remove(e PortFwEntry) bool {
	for i, existing := range g.entries {
		if existing.matches(e) {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (g *portFwGroup) ruleForPort(port uint16) (PortFwEntry, bool) {
	for _, e := range g.entries {
		if e.ExtPorts.Contains(port) {
			return e, true
		}
	}
	return PortFwEntry{}, false
}

// PortFwTable holds operator-configured port-forwarding rules, looked up by
// key and external port. No pipeline stage or configuration step in this
// module populates or consults it.
type PortFwTable struct {
	groups map[PortFwKey]*portFwGroup
}

// NewPortFwTable returns an empty table.
func NewPortFwTable() *PortFwTable {
	return &PortFwTable{groups: make(map[PortFwKey]*portFwGroup)}
}

// Add inserts or updates a rule. Re-adding an equivalent rule (same key,
// target, and ranges) with different timeouts updates the existing entry
// in place rather than creating a duplicate.
func (t *PortFwTable) Add(e PortFwEntry) {
	g, ok := t.groups[e.Key]
	if !ok {
		g = &portFwGroup{}
		t.groups[e.Key] = g
	}
	g.addOrUpdate(e)
}

// Remove deletes a rule matching e, if present.
func (t *PortFwTable) Remove(e PortFwEntry) bool {
	g, ok := t.groups[e.Key]
	if !ok {
		return false
	}
	removed := g.remove(e)
	if len(g.entries) == 0 {
		delete(t.groups, e.Key)
	}
	return removed
}

// Replace clears the table and installs ruleset.
func (t *PortFwTable) Replace(ruleset []PortFwEntry) {
	t.groups = make(map[PortFwKey]*portFwGroup, len(ruleset))
	for _, e := range ruleset {
		t.Add(e)
	}
}

// Lookup finds the rule matching key whose external range contains port.
func (t *PortFwTable) Lookup(key PortFwKey, port uint16) (PortFwEntry, bool) {
	g, ok := t.groups[key]
	if !ok {
		return PortFwEntry{}, false
	}
	return g.ruleForPort(port)
}

// IsEmpty reports whether the table has no rules.
func (t *PortFwTable) IsEmpty() bool { return len(t.groups) == 0 }

// Len returns the total number of configured rules.
func (t *PortFwTable) Len() int {
	n := 0
	for _, g := range t.groups {
		n += len(g.entries)
	}
	return n
}
