package gwconfig

import (
	"fmt"
	"math/big"

	"github.com/hedgehog/gwcore/pkg/gwerr"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/resolver"
)

// reservedVni is excluded on top of the [1, 2^24-2] range gwtypes.NewVni
// already enforces; it has no meaning to this system and is reserved for
// the underlay's own use.
const reservedVni uint32 = 254

// Validate runs every syntactic and cross-field check §4.J and §6
// describe, returning the first violation found as a *gwerr.InvalidConfig.
func Validate(cfg ExternalConfig) error {
	if err := validateVtep(cfg.Underlay.Vtep); err != nil {
		return err
	}
	if err := validateVpcTable(cfg.Overlay.VpcTable); err != nil {
		return err
	}
	if err := validatePeeringTable(cfg.Overlay.PeeringTable); err != nil {
		return err
	}
	return nil
}

func validateVtep(vtep *UnderlayVtep) error {
	if vtep == nil {
		return nil
	}
	if err := checkVni(vtep.Vni, "underlay.vtep.vni"); err != nil {
		return err
	}
	if !vtep.LocalIpv4.IsValid() || !vtep.LocalIpv4.Is4() {
		return &gwerr.InvalidConfig{Field: "underlay.vtep.local_ipv4", Reason: "must be a valid IPv4 address"}
	}
	return nil
}

func checkVni(vni uint32, field string) error {
	if vni == reservedVni {
		return &gwerr.InvalidConfig{Field: field, Reason: "vni 254 is reserved"}
	}
	if _, err := gwtypes.NewVni(vni); err != nil {
		return &gwerr.InvalidConfig{Field: field, Reason: err.Error()}
	}
	return nil
}

func validateVpcTable(vpcs []VpcEntry) error {
	seenName := make(map[string]bool, len(vpcs))
	seenVni := make(map[uint32]bool, len(vpcs))
	for i, vpc := range vpcs {
		field := fmt.Sprintf("overlay.vpc_table[%d]", i)
		if vpc.Name == "" {
			return &gwerr.InvalidConfig{Field: field + ".name", Reason: "must not be empty"}
		}
		if seenName[vpc.Name] {
			return &gwerr.InvalidConfig{Field: field + ".name", Reason: fmt.Sprintf("duplicate vpc name %q", vpc.Name)}
		}
		seenName[vpc.Name] = true

		if err := checkVni(vpc.Vni, field+".vni"); err != nil {
			return err
		}
		if seenVni[vpc.Vni] {
			return &gwerr.InvalidConfig{Field: field + ".vni", Reason: fmt.Sprintf("duplicate vni %d", vpc.Vni)}
		}
		seenVni[vpc.Vni] = true
	}
	return nil
}

func validatePeeringTable(peerings []PeeringEntry) error {
	seenName := make(map[string]bool, len(peerings))
	for i, p := range peerings {
		field := fmt.Sprintf("overlay.peering_table[%d]", i)
		if p.Name == "" {
			return &gwerr.InvalidConfig{Field: field + ".name", Reason: "must not be empty"}
		}
		if seenName[p.Name] {
			return &gwerr.InvalidConfig{Field: field + ".name", Reason: fmt.Sprintf("duplicate peering name %q", p.Name)}
		}
		seenName[p.Name] = true

		if err := validateManifest(p.LocalManifest, field+".local_manifest"); err != nil {
			return err
		}
		if err := validateManifest(p.RemoteManifest, field+".remote_manifest"); err != nil {
			return err
		}
	}
	return nil
}

func validateManifest(m Manifest, field string) error {
	for i, expose := range m.Exposes {
		if err := validateExpose(expose, fmt.Sprintf("%s.exposes[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateExpose(e VpcExpose, field string) error {
	if e.Default {
		if len(e.Ips) != 0 || len(e.AsRange) != 0 {
			return &gwerr.InvalidConfig{Field: field, Reason: "a default expose must leave ips and as_range empty"}
		}
		return nil
	}

	effective := resolver.CollapseExposes(e.Ips, e.Nots)
	if len(effective) == 0 {
		return &gwerr.InvalidConfig{Field: field + ".ips", Reason: "ips minus nots must be non-empty when default=false"}
	}

	if e.Nat.Mode == NatModeStateless {
		target := resolver.CollapseExposes(e.AsRange, e.NotAs)
		sourceCard := cardinalitySum(effective)
		targetCard := cardinalitySum(target)
		if sourceCard.Cmp(targetCard) != 0 {
			return &gwerr.InvalidConfig{
				Field:  field + ".as_range",
				Reason: fmt.Sprintf("as_range minus not_as must have the same address count as ips minus nots (got %s vs %s)", targetCard, sourceCard),
			}
		}
	}

	if e.Ports != nil {
		if e.Ports.Start == 0 || e.Ports.End == 0 || e.Ports.Start > e.Ports.End {
			return &gwerr.InvalidConfig{Field: field + ".ports", Reason: "port range must satisfy 1 <= start <= end <= 65535"}
		}
	}
	return nil
}

func cardinalitySum(prefixes []gwtypes.Prefix) *big.Int {
	sum := big.NewInt(0)
	for _, p := range prefixes {
		sum.Add(sum, p.Cardinality())
	}
	return sum
}
