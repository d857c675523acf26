package api

import (
	"net"

	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/hedgehog/gwcore/pkg/log"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// Server is the gRPC control interface: a thin wrapper around
// gwconfig.Processor with no certificate or token handling of its own.
type Server struct {
	proc    *gwconfig.Processor
	logger  zerolog.Logger
	grpcSrv *grpc.Server
}

// NewServer builds a Server and registers it on a fresh grpc.Server
// with the correlation-id/logging interceptor as its only middleware.
func NewServer(proc *gwconfig.Processor) *Server {
	logger := log.WithComponent("api")
	s := &Server{proc: proc, logger: logger}
	s.grpcSrv = grpc.NewServer(grpc.ChainUnaryInterceptor(CorrelationInterceptor(logger)))
	s.grpcSrv.RegisterService(&controlServiceDesc, s)
	return s
}

// Serve blocks accepting and handling requests on lis until Stop is
// called or lis itself is closed.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("control server listening")
	return s.grpcSrv.Serve(lis)
}

// Stop drains in-flight requests and stops accepting new ones.
func (s *Server) Stop() {
	s.grpcSrv.GracefulStop()
}
