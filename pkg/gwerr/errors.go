package gwerr

import (
	"fmt"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// InvalidConfig reports a configuration that failed validation, or a
// cross-reference check made during derivation: a missing field, an
// out-of-range value, or a cross-field conflict. Field names a dotted path into the
// ExternalConfig the caller submitted.
type InvalidConfig struct {
	Field  string
	Reason string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("invalid config at %s: %s", e.Field, e.Reason)
}

// ConfigAlreadyExists reports an ApplyConfig call whose GenId is already
// live or already stored in the configuration database (a generation is
// stored before the apply steps run, so this includes one whose apply
// failed); the request is rejected and no kernel or routing-daemon state
// changes.
type ConfigAlreadyExists struct {
	Gen gwtypes.GenId
}

func (e *ConfigAlreadyExists) Error() string {
	return fmt.Sprintf("config generation %d already applied", e.Gen)
}

// FrrAgentUnreachable reports that the routing-daemon control socket could
// not be reached during the liveness probe step of apply; the previous
// configuration remains live.
type FrrAgentUnreachable struct {
	Detail string
}

func (e *FrrAgentUnreachable) Error() string {
	if e.Detail == "" {
		return "routing daemon unreachable"
	}
	return fmt.Sprintf("routing daemon unreachable: %s", e.Detail)
}

// FrrApplyError reports that the routing daemon rejected the rendered
// configuration it was pushed, e.g. a parse error in the generated text.
type FrrApplyError struct {
	Detail string
}

func (e *FrrApplyError) Error() string {
	return fmt.Sprintf("routing daemon rejected configuration: %s", e.Detail)
}

// InternalFailure reports a derivation-time inconsistency in an otherwise
// syntactically valid configuration: a prefix collision that could not be
// collapsed, NAT pool exhaustion discovered at build time, or similar.
type InternalFailure struct {
	Detail string
}

func (e *InternalFailure) Error() string {
	return fmt.Sprintf("internal failure: %s", e.Detail)
}

// FailureApply reports that reconciliation did not converge during an
// otherwise valid apply; the caller should retry. A rejected
// routing-daemon push is reported as FrrApplyError instead.
type FailureApply struct {
	Detail string
}

func (e *FailureApply) Error() string {
	return fmt.Sprintf("apply failed: %s", e.Detail)
}
