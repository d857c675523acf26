package gwerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/stretchr/testify/require"
)

func TestErrorsAsMatchesConcreteKinds(t *testing.T) {
	cases := []error{
		&InvalidConfig{Field: "overlay.vpc_table[0].vni", Reason: "reserved"},
		&ConfigAlreadyExists{Gen: gwtypes.GenId(3)},
		&FrrAgentUnreachable{Detail: "dial unix: no such file"},
		&FrrApplyError{Detail: "line 4: syntax error"},
		&InternalFailure{Detail: "target address space exhausted"},
		&FailureApply{Detail: "did not converge within 30 passes"},
	}

	for _, c := range cases {
		wrapped := fmt.Errorf("processor: %w", c)
		require.NotEmpty(t, c.Error())

		switch c.(type) {
		case *InvalidConfig:
			var target *InvalidConfig
			require.True(t, errors.As(wrapped, &target))
		case *ConfigAlreadyExists:
			var target *ConfigAlreadyExists
			require.True(t, errors.As(wrapped, &target))
		case *FrrAgentUnreachable:
			var target *FrrAgentUnreachable
			require.True(t, errors.As(wrapped, &target))
		case *FrrApplyError:
			var target *FrrApplyError
			require.True(t, errors.As(wrapped, &target))
		case *InternalFailure:
			var target *InternalFailure
			require.True(t, errors.As(wrapped, &target))
		case *FailureApply:
			var target *FailureApply
			require.True(t, errors.As(wrapped, &target))
		}
	}
}

func TestConfigAlreadyExistsMessageIncludesGeneration(t *testing.T) {
	err := &ConfigAlreadyExists{Gen: gwtypes.GenId(42)}
	require.Contains(t, err.Error(), "42")
}
