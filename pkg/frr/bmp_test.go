package frr

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen int
	done chan struct{}
}

func (h *recordingHandler) Handle(ctx context.Context, conn net.Conn) {
	buf := make([]byte, 16)
	_, _ = conn.Read(buf)
	h.mu.Lock()
	h.seen++
	h.mu.Unlock()
	close(h.done)
}

func TestBmpServerDispatchesConnectionToHandler(t *testing.T) {
	handler := &recordingHandler{done: make(chan struct{})}
	srv := NewBmpServer(BmpServerConfig{BindAddr: "127.0.0.1:0"}, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run does not report the address it bound, so pick a free loopback
	// port by listening on an OS-chosen ephemeral port, release it, and
	// hand that address to Run.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	srv.cfg.BindAddr = addr

	go func() { _ = srv.Run(ctx) }()
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Write([]byte("hello\n"))
		conn.Close()
		return true
	}, time.Second, 10*time.Millisecond)

	select {
	case <-handler.done:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.GreaterOrEqual(t, handler.seen, 1)
}
