package api

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestCorrelationInterceptorPassesThroughSuccess(t *testing.T) {
	interceptor := CorrelationInterceptor(zerolog.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/gatewayd.Control/GetGeneration"}
	called := false

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		called = true
		return "resp", nil
	})

	require.True(t, called)
	require.NoError(t, err)
	require.Equal(t, "resp", resp)
}

func TestCorrelationInterceptorPassesThroughError(t *testing.T) {
	interceptor := CorrelationInterceptor(zerolog.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/gatewayd.Control/ApplyConfig"}
	wantErr := errors.New("boom")

	_, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, wantErr
	})

	require.ErrorIs(t, err, wantErr)
}
