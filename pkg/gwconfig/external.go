package gwconfig

import (
	"net"
	"net/netip"
	"time"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// ExternalConfig is the configuration surface the core consumes, per §6.
// It is what a caller submits to ApplyConfig, parsed from YAML by gwctl
// or carried as a structured payload over the control RPC.
type ExternalConfig struct {
	Device  Device  `yaml:"device"`
	Underlay Underlay `yaml:"underlay"`
	Overlay  Overlay  `yaml:"overlay"`
}

// Device identifies the gateway itself. Unused by the core beyond
// logging, per §6.
type Device struct {
	Hostname string `yaml:"hostname"`
}

// Underlay holds the default-VRF routing configuration and the VTEP the
// gateway terminates VXLAN traffic on.
type Underlay struct {
	Vrf  UnderlayVrf   `yaml:"vrf"`
	Vtep *UnderlayVtep `yaml:"vtep,omitempty"`
}

// UnderlayVrf is the default VRF's BGP configuration: ASN, router-id, the
// EVPN address-family advertising tenant VNIs/SVIs/gateways, and an
// IPv4-unicast address-family for underlay reachability.
type UnderlayVrf struct {
	Asn      uint32        `yaml:"asn"`
	RouterId netip.Addr    `yaml:"router_id"`
	Evpn     AfEvpn        `yaml:"address_family_evpn"`
	Ipv4     AfIpv4Unicast `yaml:"address_family_ipv4_unicast"`
	Neighbors []BgpNeighbor `yaml:"neighbors"`
}

// AfEvpn is the L2VPN EVPN address-family toggle set; per §6 the
// defaults the original system always advertises are adv-all-vni,
// adv-default-gw, adv-svi-ip and adv-ipv4-unicast.
type AfEvpn struct {
	AdvAllVni       bool `yaml:"adv_all_vni"`
	AdvDefaultGw    bool `yaml:"adv_default_gw"`
	AdvSviIp        bool `yaml:"adv_svi_ip"`
	AdvIpv4Unicast  bool `yaml:"adv_ipv4_unicast"`
}

// DefaultAfEvpn returns the always-on EVPN toggle set §6 specifies.
func DefaultAfEvpn() AfEvpn {
	return AfEvpn{AdvAllVni: true, AdvDefaultGw: true, AdvSviIp: true, AdvIpv4Unicast: true}
}

// AfIpv4Unicast carries the underlay networks advertised into BGP.
type AfIpv4Unicast struct {
	Networks []gwtypes.Prefix `yaml:"networks"`
}

// BgpNeighbor is one configured underlay BGP peer.
type BgpNeighbor struct {
	Addr        netip.Addr `yaml:"addr"`
	RemoteAsn   uint32     `yaml:"remote_asn"`
	Description string     `yaml:"description,omitempty"`
}

// UnderlayVtep configures the VXLAN tunnel endpoint the reconciler
// creates a kernel vxlan netdevice for. Ttl defaults to 64 when zero.
type UnderlayVtep struct {
	Vni       uint32           `yaml:"vni"`
	LocalIpv4 netip.Addr       `yaml:"local_ipv4"`
	Mac       net.HardwareAddr `yaml:"mac,omitempty"`
	Ttl       uint8            `yaml:"ttl,omitempty"`
}

// DefaultVtepTtl is used when UnderlayVtep.Ttl is left at its zero value.
const DefaultVtepTtl uint8 = 64

// Overlay holds the tenant VPC and inter-VPC peering configuration.
type Overlay struct {
	VpcTable     []VpcEntry     `yaml:"vpc_table"`
	PeeringTable []PeeringEntry `yaml:"peering_table"`
}

// VpcEntry is one tenant VPC: its VNI discriminant and the names of the
// peerings (from Overlay.PeeringTable) it participates in.
type VpcEntry struct {
	Name     string   `yaml:"name"`
	Id       uint64   `yaml:"id"`
	Vni      uint32   `yaml:"vni"`
	Peerings []string `yaml:"peerings"`
}

// NatMode selects between 1:1 stateless translation and masquerade
// (stateful, port-allocated) translation for an expose entry.
type NatMode int

const (
	NatModeStateless NatMode = iota
	NatModeStateful
)

func (m NatMode) String() string {
	if m == NatModeStateful {
		return "stateful"
	}
	return "stateless"
}

// NatConfig is an expose entry's NAT mode and, for stateful mode, the
// idle timeout applied to flows created against it.
type NatConfig struct {
	Mode         NatMode        `yaml:"mode"`
	IdleTimeout  *time.Duration `yaml:"idle_timeout,omitempty"`
}

// VpcExpose is one address-range exposure within a manifest: the
// addresses a VPC exposes to its peer (Ips minus Nots) and, for
// stateless mode, the target range those addresses translate into
// (AsRange minus NotAs). Default exposes (the VPC's whole address space,
// unenumerated) carry Default=true and must leave Ips/AsRange empty.
type VpcExpose struct {
	Default bool             `yaml:"default"`
	Ips     []gwtypes.Prefix `yaml:"ips"`
	Nots    []gwtypes.Prefix `yaml:"nots"`
	AsRange []gwtypes.Prefix `yaml:"as_range"`
	NotAs   []gwtypes.Prefix `yaml:"not_as"`
	Ports   *gwtypes.PortRange `yaml:"ports,omitempty"`
	Nat     NatConfig        `yaml:"nat"`
}

// Manifest is one side (local or remote) of a peering: the set of
// address ranges that side exposes to the other.
type Manifest struct {
	Exposes []VpcExpose `yaml:"exposes"`
}

// PeeringEntry configures a bidirectional relationship between two
// VPCs: what the local side exposes to the remote side and vice versa.
type PeeringEntry struct {
	Name           string   `yaml:"name"`
	LocalManifest  Manifest `yaml:"local_manifest"`
	RemoteManifest Manifest `yaml:"remote_manifest"`
	RemoteId       uint64   `yaml:"remote_id"`
}
