package frr

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/hedgehog/gwcore/pkg/log"
	"github.com/rs/zerolog"
)

// BmpServerConfig configures the passive BMP listener. BMP (BGP
// Monitoring Protocol, RFC 7854) is the routing daemon pushing its RIB
// state to a diagnostic collector; this gateway never speaks BMP back.
type BmpServerConfig struct {
	BindAddr string
	MaxConns int
}

// DefaultBmpServerConfig matches the defaults used in integration
// fixtures against the routing daemon: bind on all interfaces, no
// connection cap.
func DefaultBmpServerConfig() BmpServerConfig {
	return BmpServerConfig{BindAddr: "0.0.0.0:5000"}
}

// BmpHandler receives raw BMP messages read off one connection. It is
// not responsible for connection lifecycle; the server closes conn once
// Handle returns.
type BmpHandler interface {
	Handle(ctx context.Context, conn net.Conn)
}

// BmpServer is a passive diagnostic listener: it accepts connections
// from the routing daemon's BMP exporter and hands each one to a
// handler, but is not part of the apply path and never blocks a
// configuration apply.
type BmpServer struct {
	cfg     BmpServerConfig
	handler BmpHandler
	logger  zerolog.Logger
}

// NewBmpServer returns a server that has not started listening yet.
func NewBmpServer(cfg BmpServerConfig, handler BmpHandler) *BmpServer {
	return &BmpServer{cfg: cfg, handler: handler, logger: log.WithComponent("frr-bmp")}
}

// Run listens on cfg.BindAddr until ctx is canceled, dispatching each
// accepted connection to the handler on its own goroutine.
func (s *BmpServer) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.BindAddr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", s.cfg.BindAddr).Msg("bmp listener started")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var active atomic.Int32
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Warn().Err(err).Msg("bmp accept failed")
				continue
			}
		}
		if s.cfg.MaxConns > 0 && int(active.Load()) >= s.cfg.MaxConns {
			conn.Close()
			continue
		}
		active.Add(1)
		go func() {
			defer active.Add(-1)
			defer conn.Close()
			s.handler.Handle(ctx, conn)
		}()
	}
}
