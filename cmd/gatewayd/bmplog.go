package main

import (
	"bufio"
	"context"
	"net"

	"github.com/rs/zerolog"
)

// loggingBmpHandler drains a BMP session and logs its length, leaving
// message-level decoding as future work: nothing in this gateway's
// forwarding path depends on BMP today, it exists purely so an operator
// can point a collector at the routing daemon and confirm it is
// exporting RIB state.
type loggingBmpHandler struct {
	logger zerolog.Logger
}

func (h *loggingBmpHandler) Handle(ctx context.Context, conn net.Conn) {
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("bmp session opened")
	r := bufio.NewReader(conn)
	buf := make([]byte, 4096)
	total := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := r.Read(buf)
		total += n
		if err != nil {
			h.logger.Info().Str("remote", conn.RemoteAddr().String()).Int("bytes", total).Msg("bmp session closed")
			return
		}
	}
}
