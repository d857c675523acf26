package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// CorrelationInterceptor tags every unary call with a request-scoped
// correlation id and logs its method, duration and outcome. It is the
// only interceptor the control server registers -- there is no
// authentication layer to gate read-only vs write methods against.
func CorrelationInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id := uuid.NewString()
		start := time.Now()

		resp, err := handler(ctx, req)

		entry := logger.Info()
		if err != nil {
			entry = logger.Error().Err(err)
		}
		entry.Str("correlation_id", id).
			Str("method", info.FullMethod).
			Dur("duration", time.Since(start)).
			Msg("control request")

		return resp, err
	}
}
