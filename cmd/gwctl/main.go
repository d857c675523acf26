package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gwctl",
	Short: "Operator CLI for the gateway control interface",
}

func init() {
	rootCmd.PersistentFlags().String("addr", "127.0.0.1:9443", "gateway control interface address")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
}

// controlClient wraps the three hand-built control RPCs: no generated
// stub exists for this interface (pkg/api's ServiceDesc is hand-built
// against structpb.Struct rather than protoc-generated code), so the
// client side invokes the same methods directly through grpc.ClientConn.
type controlClient struct {
	conn *grpc.ClientConn
}

func dialControl(addr string) (*controlClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &controlClient{conn: conn}, nil
}

func (c *controlClient) Close() error { return c.conn.Close() }

func (c *controlClient) call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/gatewayd.Control/"+method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *controlClient) ApplyConfig(ctx context.Context, genID uint64, config map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"gen_id": float64(genID),
		"config": config,
	})
	if err != nil {
		return nil, err
	}
	return c.call(ctx, "ApplyConfig", req)
}

func (c *controlClient) GetCurrentConfig(ctx context.Context) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(nil)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, "GetCurrentConfig", req)
}

func (c *controlClient) GetGeneration(ctx context.Context) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(nil)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, "GetGeneration", req)
}
