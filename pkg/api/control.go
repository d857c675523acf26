package api

import (
	"context"
	"encoding/json"

	"github.com/hedgehog/gwcore/pkg/gwconfig"
	"github.com/hedgehog/gwcore/pkg/gwerr"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// controlServiceDesc wires the three control-plane RPCs onto Server. It
// is built by hand in the shape protoc-gen-go-grpc would generate from a
// .proto file, using structpb.Struct (a real generated message type
// shipped with google.golang.org/protobuf) as both request and response
// so the wire format is genuine protobuf without a .proto/protoc step.
var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: "gatewayd.Control",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ApplyConfig", Handler: applyConfigHandler},
		{MethodName: "GetCurrentConfig", Handler: getCurrentConfigHandler},
		{MethodName: "GetGeneration", Handler: getGenerationHandler},
	},
	Metadata: "gwcore/control",
}

func applyConfigHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.applyConfig(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/gatewayd.Control/ApplyConfig"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.applyConfig(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getCurrentConfigHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.getCurrentConfig(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/gatewayd.Control/GetCurrentConfig"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.getCurrentConfig(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getGenerationHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.getGeneration(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/gatewayd.Control/GetGeneration"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.getGeneration(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// applyConfig decodes {gen_id, config} from the request struct, drives
// gwconfig.Processor.Apply, and maps its typed errors onto gRPC status
// codes a caller can branch on without inspecting message text.
func (s *Server) applyConfig(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	genVal, ok := in.GetFields()["gen_id"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "gen_id is required")
	}
	configVal, ok := in.GetFields()["config"]
	if !ok || configVal.GetStructValue() == nil {
		return nil, status.Error(codes.InvalidArgument, "config is required")
	}

	gen := gwtypes.GenId(genVal.GetNumberValue())
	var cfg gwconfig.ExternalConfig
	if err := structToValue(configVal.GetStructValue(), &cfg); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode config: %v", err)
	}

	if err := s.proc.Apply(ctx, gen, cfg); err != nil {
		return nil, mapApplyError(err)
	}
	return structpb.NewStruct(map[string]interface{}{"gen_id": float64(gen)})
}

func (s *Server) getCurrentConfig(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	cfg, gen, ok := s.proc.GetCurrentConfig()
	if !ok {
		return nil, status.Error(codes.NotFound, "no configuration applied yet")
	}
	cfgMap, err := valueToMap(cfg)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode config: %v", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"gen_id": float64(gen),
		"config": cfgMap,
	})
}

func (s *Server) getGeneration(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	gen, ok := s.proc.GetGeneration()
	if !ok {
		return nil, status.Error(codes.NotFound, "no configuration applied yet")
	}
	return structpb.NewStruct(map[string]interface{}{"gen_id": float64(gen)})
}

// mapApplyError translates gwconfig.Processor.Apply's typed errors into
// gRPC status codes; anything unrecognized becomes codes.Internal rather
// than leaking an untyped error to the wire.
func mapApplyError(err error) error {
	switch e := err.(type) {
	case *gwerr.InvalidConfig:
		return status.Error(codes.InvalidArgument, e.Error())
	case *gwerr.ConfigAlreadyExists:
		return status.Error(codes.AlreadyExists, e.Error())
	case *gwerr.FrrAgentUnreachable:
		return status.Error(codes.Unavailable, e.Error())
	case *gwerr.FrrApplyError:
		return status.Error(codes.FailedPrecondition, e.Error())
	case *gwerr.FailureApply:
		return status.Error(codes.FailedPrecondition, e.Error())
	case *gwerr.InternalFailure:
		return status.Error(codes.Internal, e.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// structToValue and valueToMap round-trip a Go value through JSON to
// move it in and out of a structpb.Struct, since ExternalConfig is not
// itself a protobuf message.
func structToValue(in *structpb.Struct, out interface{}) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func valueToMap(in interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
