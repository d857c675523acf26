package reconciler

import (
	"fmt"
	"net/netip"
	"sort"
)

// Kind classifies an interface's netlink link type. Other covers anything
// the reconciler does not manage (physical NICs, loopback) -- such
// interfaces are observed so associations can reference them, but the
// reconciler never creates, deletes or updates them.
type Kind int

const (
	KindOther Kind = iota
	KindBridge
	KindVrf
	KindVtep
)

func (k Kind) String() string {
	switch k {
	case KindBridge:
		return "bridge"
	case KindVrf:
		return "vrf"
	case KindVtep:
		return "vtep"
	default:
		return "other"
	}
}

// BridgeProperties mirrors the bridge-kind attributes named in §6:
// VlanFiltering and the 802.1Q/802.1ad VlanProtocol ethertype.
type BridgeProperties struct {
	VlanFiltering bool
	VlanProtocol  uint16 // 0x8100 or 0x88a8
}

// VrfProperties mirrors a VRF's routing table id.
type VrfProperties struct {
	TableId uint32
}

// VtepProperties mirrors a VXLAN tunnel endpoint's encapsulation parameters.
type VtepProperties struct {
	Vni   uint32
	Local netip.Addr
	Ttl   uint8
	Port  uint16 // 0 means the kernel default (4789)
}

// AdminState is the observed or required operational state of a link.
type AdminState int

const (
	AdminUnknown AdminState = iota
	AdminUp
	AdminDown
)

func (s AdminState) String() string {
	switch s {
	case AdminUp:
		return "up"
	case AdminDown:
		return "down"
	default:
		return "unknown"
	}
}

// InterfaceSpec is one interface's identity plus its kind-specific
// properties, independent of whether it is required or merely observed.
type InterfaceSpec struct {
	Name  string
	Kind  Kind
	Admin AdminState

	Bridge BridgeProperties
	Vrf    VrfProperties
	Vtep   VtepProperties
}

// Equal reports whether two specs describe the same desired kernel state,
// ignoring Admin (handled as a separate reconciliation step per §4.I.4).
func (s InterfaceSpec) Equal(other InterfaceSpec) bool {
	if s.Name != other.Name || s.Kind != other.Kind {
		return false
	}
	switch s.Kind {
	case KindBridge:
		return s.Bridge == other.Bridge
	case KindVrf:
		return s.Vrf == other.Vrf
	case KindVtep:
		a, b := s.Vtep, other.Vtep
		if a.Port == 0 {
			a.Port = 4789
		}
		if b.Port == 0 {
			b.Port = 4789
		}
		return a == b
	default:
		return true
	}
}

// InterfaceAssociation binds a child interface to its controller (bridge
// master or VRF enslavement) by name.
type InterfaceAssociation struct {
	Child      string
	Controller string
}

// RIB is a complete description of interfaces and their associations, used
// both for the required (from configuration) and observed (from the
// kernel) state.
type RIB struct {
	Interfaces   map[string]InterfaceSpec
	Associations map[string]InterfaceAssociation // keyed by Child
}

// NewRIB returns an empty RIB ready to be populated.
func NewRIB() *RIB {
	return &RIB{
		Interfaces:   make(map[string]InterfaceSpec),
		Associations: make(map[string]InterfaceAssociation),
	}
}

// AddInterface inserts or replaces spec in the RIB, keyed by name.
func (r *RIB) AddInterface(spec InterfaceSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("reconciler: interface spec has empty name")
	}
	r.Interfaces[spec.Name] = spec
	return nil
}

// SetAssociation records that child is attached to controller.
func (r *RIB) SetAssociation(child, controller string) {
	r.Associations[child] = InterfaceAssociation{Child: child, Controller: controller}
}

// sortedNames returns every interface name in deterministic order, the
// tie-break §4.I.4's ordering rules require within a reconciliation step.
func (r *RIB) sortedNames() []string {
	names := make([]string, 0, len(r.Interfaces))
	for name := range r.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *RIB) sortedAssociations() []InterfaceAssociation {
	out := make([]InterfaceAssociation, 0, len(r.Associations))
	for _, a := range r.Associations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Child < out[j].Child })
	return out
}
