package reconciler

// ActionKind identifies what an Action asks the netlink layer to do.
type ActionKind int

const (
	ActionDelete ActionKind = iota
	ActionCreate
	ActionUpdate
	ActionReplace
	ActionAssociate
	ActionDetach
	ActionSetAdmin
)

func (k ActionKind) String() string {
	switch k {
	case ActionDelete:
		return "delete"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionReplace:
		return "replace"
	case ActionAssociate:
		return "associate"
	case ActionDetach:
		return "detach"
	case ActionSetAdmin:
		return "set_admin"
	default:
		return "unknown"
	}
}

// Action is one netlink request the plan asks the apply step to issue.
// Name always refers to the child/target interface; Controller is only
// meaningful for Associate.
type Action struct {
	Kind       ActionKind
	Name       string
	Spec       InterfaceSpec // for Create/Update/Replace
	Controller string        // for Associate
	Admin      AdminState    // for SetAdmin
}

// Plan computes the ordered sequence of actions that converges observed
// toward required, per §4.I's reconciliation policy:
//
//  1. delete observed interfaces no requirement references (skip Other)
//  2. create/update/replace required interfaces against what's observed
//  3. resolve and apply associations
//  4. fix admin-state mismatches
//
// Ordering across these four groups is fixed; within a group, interfaces
// are visited in deterministic name order. Associations are planned
// without checking that the controller exists yet; Apply issues the
// creates before them. A single pass may still leave work for the next
// one -- e.g. a Replace recreates a link without the association it had.
func Plan(required, observed *RIB) []Action {
	var actions []Action

	for _, name := range observed.sortedNames() {
		spec := observed.Interfaces[name]
		if spec.Kind == KindOther {
			continue
		}
		if _, ok := required.Interfaces[name]; !ok {
			actions = append(actions, Action{Kind: ActionDelete, Name: name})
		}
	}

	for _, name := range required.sortedNames() {
		reqSpec := required.Interfaces[name]
		obsSpec, ok := observed.Interfaces[name]
		if !ok {
			actions = append(actions, Action{Kind: ActionCreate, Name: name, Spec: reqSpec})
			continue
		}
		if reqSpec.Equal(obsSpec) {
			continue
		}
		if updatable(reqSpec, obsSpec) {
			actions = append(actions, Action{Kind: ActionUpdate, Name: name, Spec: reqSpec})
		} else {
			actions = append(actions, Action{Kind: ActionReplace, Name: name, Spec: reqSpec})
		}
	}

	for _, assoc := range required.sortedAssociations() {
		if observed.Associations[assoc.Child] == assoc {
			continue
		}
		actions = append(actions, Action{Kind: ActionAssociate, Name: assoc.Child, Controller: assoc.Controller})
	}
	for _, assoc := range observed.sortedAssociations() {
		if _, wantsAssociation := required.Associations[assoc.Child]; wantsAssociation {
			continue
		}
		if _, stillTracked := required.Interfaces[assoc.Child]; stillTracked {
			actions = append(actions, Action{Kind: ActionDetach, Name: assoc.Child})
		}
	}

	for _, name := range required.sortedNames() {
		reqSpec := required.Interfaces[name]
		if reqSpec.Admin == AdminUnknown {
			continue
		}
		obsSpec, ok := observed.Interfaces[name]
		if ok && obsSpec.Admin == reqSpec.Admin {
			continue
		}
		actions = append(actions, Action{Kind: ActionSetAdmin, Name: name, Admin: reqSpec.Admin})
	}

	return actions
}

// updatable reports whether reqSpec's difference from obsSpec is limited
// to in-place-settable attributes (bridge VLAN filtering/protocol), vs.
// requiring a replace-and-recreate (anything that changes a VRF's table
// id or a VTEP's VNI/local address/TTL, which the kernel cannot alter on
// a live link).
func updatable(req, obs InterfaceSpec) bool {
	if req.Kind != obs.Kind {
		return false
	}
	switch req.Kind {
	case KindBridge:
		return true
	default:
		return false
	}
}

// Converged reports whether a Plan produced no actions, the signal the
// reconciliation loop uses to stop iterating.
func Converged(actions []Action) bool { return len(actions) == 0 }
