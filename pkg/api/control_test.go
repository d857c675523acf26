package api

import (
	"context"
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/hedgehog/gwcore/pkg/gwerr"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	store, err := gwconfig.OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewServer(gwconfig.NewProcessor(store, nil, nil, nil))
}

func TestApplyConfigRejectsMissingGenId(t *testing.T) {
	s := testServer(t)
	req, err := structpb.NewStruct(map[string]interface{}{
		"config": map[string]interface{}{},
	})
	require.NoError(t, err)

	_, err = s.applyConfig(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestApplyConfigRejectsMissingConfig(t *testing.T) {
	s := testServer(t)
	req, err := structpb.NewStruct(map[string]interface{}{"gen_id": float64(1)})
	require.NoError(t, err)

	_, err = s.applyConfig(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetCurrentConfigNotFoundBeforeApply(t *testing.T) {
	s := testServer(t)
	_, err := s.getCurrentConfig(context.Background(), mustEmptyStruct(t))
	require.Error(t, err)
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetGenerationNotFoundBeforeApply(t *testing.T) {
	s := testServer(t)
	_, err := s.getGeneration(context.Background(), mustEmptyStruct(t))
	require.Error(t, err)
	require.Equal(t, codes.NotFound, status.Code(err))
}

func mustEmptyStruct(t *testing.T) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(nil)
	require.NoError(t, err)
	return st
}

func TestMapApplyErrorTranslatesTypedErrors(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{&gwerr.InvalidConfig{Field: "x", Reason: "bad"}, codes.InvalidArgument},
		{&gwerr.ConfigAlreadyExists{Gen: 1}, codes.AlreadyExists},
		{&gwerr.FrrAgentUnreachable{Detail: "timeout"}, codes.Unavailable},
		{&gwerr.FrrApplyError{Detail: "rejected"}, codes.FailedPrecondition},
		{&gwerr.FailureApply{Detail: "no converge"}, codes.FailedPrecondition},
		{&gwerr.InternalFailure{Detail: "oops"}, codes.Internal},
	}
	for _, tc := range cases {
		got := mapApplyError(tc.err)
		require.Equal(t, tc.want, status.Code(got))
	}
}

func TestValueRoundTripsThroughStruct(t *testing.T) {
	cfg := gwconfig.ExternalConfig{
		Device: gwconfig.Device{Hostname: "gw-1"},
	}
	m, err := valueToMap(cfg)
	require.NoError(t, err)

	st, err := structpb.NewStruct(m)
	require.NoError(t, err)

	var out gwconfig.ExternalConfig
	require.NoError(t, structToValue(st, &out))
	require.Equal(t, cfg.Device.Hostname, out.Device.Hostname)
}
