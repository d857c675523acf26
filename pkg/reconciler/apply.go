package reconciler

import (
	"errors"
	"fmt"

	"github.com/hedgehog/gwcore/pkg/log"
	"github.com/hedgehog/gwcore/pkg/metrics"
	"github.com/vishvananda/netlink"
)

// Apply issues the netlink request for each action in order, logging and
// continuing past individual failures per §4.I's failure semantics: a
// persistent failure to reconcile one object resurfaces on the next pass
// instead of aborting the whole batch.
func Apply(actions []Action) {
	logger := log.WithComponent("reconciler")
	for _, a := range actions {
		err := applyOne(a)
		result := "ok"
		if err != nil {
			result = "error"
			logger.Error().Err(err).Str("action", a.Kind.String()).Str("name", a.Name).Msg("netlink request failed")
		}
		metrics.ReconcileRequestsTotal.WithLabelValues(a.Kind.String(), result).Inc()
	}
}

func applyOne(a Action) error {
	switch a.Kind {
	case ActionDelete:
		return deleteLink(a.Name)
	case ActionCreate:
		return createLink(a.Spec)
	case ActionUpdate:
		return updateLink(a.Name, a.Spec)
	case ActionReplace:
		if err := deleteLink(a.Name); err != nil {
			return err
		}
		return createLink(a.Spec)
	case ActionAssociate:
		return associate(a.Name, a.Controller)
	case ActionDetach:
		return detach(a.Name)
	case ActionSetAdmin:
		return setAdmin(a.Name, a.Admin)
	default:
		return fmt.Errorf("reconciler: unknown action kind %v", a.Kind)
	}
}

func deleteLink(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("delete %q: lookup: %w", name, err)
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	return nil
}

func createLink(spec InterfaceSpec) error {
	link := newLinkForSpec(spec)
	if link == nil {
		return fmt.Errorf("create %q: unsupported kind %v", spec.Name, spec.Kind)
	}
	if err := netlink.LinkAdd(link); err != nil {
		return fmt.Errorf("create %q: %w", spec.Name, err)
	}
	return nil
}

func newLinkForSpec(spec InterfaceSpec) netlink.Link {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = spec.Name

	switch spec.Kind {
	case KindBridge:
		filtering := spec.Bridge.VlanFiltering
		protocol := int(spec.Bridge.VlanProtocol)
		return &netlink.Bridge{
			LinkAttrs:     attrs,
			VlanFiltering: &filtering,
			VlanProtocol:  &protocol,
		}
	case KindVrf:
		return &netlink.Vrf{LinkAttrs: attrs, Table: spec.Vrf.TableId}
	case KindVtep:
		port := int(spec.Vtep.Port)
		if port == 0 {
			port = 4789
		}
		return &netlink.Vxlan{
			LinkAttrs: attrs,
			VxlanId:   int(spec.Vtep.Vni),
			SrcAddr:   spec.Vtep.Local.AsSlice(),
			TTL:       int(spec.Vtep.Ttl),
			Port:      port,
		}
	default:
		return nil
	}
}

// updateLink applies the limited set of in-place-settable attributes
// Plan's updatable() determined are safe to change without a replace --
// today, only a bridge's VLAN filtering/protocol.
func updateLink(name string, spec InterfaceSpec) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("update %q: lookup: %w", name, err)
	}
	br, ok := link.(*netlink.Bridge)
	if !ok {
		return fmt.Errorf("update %q: not a bridge link", name)
	}
	filtering := spec.Bridge.VlanFiltering
	protocol := int(spec.Bridge.VlanProtocol)
	br.VlanFiltering = &filtering
	br.VlanProtocol = &protocol
	if err := netlink.LinkModify(br); err != nil {
		return fmt.Errorf("update %q: %w", name, err)
	}
	return nil
}

func associate(child, controller string) error {
	childLink, err := netlink.LinkByName(child)
	if err != nil {
		return fmt.Errorf("associate %q: lookup child: %w", child, err)
	}
	controllerLink, err := netlink.LinkByName(controller)
	if err != nil {
		return fmt.Errorf("associate %q: lookup controller %q: %w", child, controller, err)
	}
	if err := netlink.LinkSetMaster(childLink, controllerLink); err != nil {
		return fmt.Errorf("associate %q to %q: %w", child, controller, err)
	}
	return nil
}

func detach(child string) error {
	link, err := netlink.LinkByName(child)
	if err != nil {
		return fmt.Errorf("detach %q: lookup: %w", child, err)
	}
	if err := netlink.LinkSetNoMaster(link); err != nil {
		return fmt.Errorf("detach %q: %w", child, err)
	}
	return nil
}

func setAdmin(name string, admin AdminState) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("set admin %q: lookup: %w", name, err)
	}
	switch admin {
	case AdminUp:
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("set admin %q up: %w", name, err)
		}
	case AdminDown:
		if err := netlink.LinkSetDown(link); err != nil {
			return fmt.Errorf("set admin %q down: %w", name, err)
		}
	}
	return nil
}
