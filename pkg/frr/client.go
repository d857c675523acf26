package frr

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/hedgehog/gwcore/pkg/log"
	"github.com/hedgehog/gwcore/pkg/metrics"
	"github.com/rs/zerolog"
)

// Client is a local socket client for the routing daemon control channel.
// It satisfies gwconfig.FrrClient structurally; gwconfig never imports
// this package, since the channel is owned exclusively by the
// configuration processor and nothing else needs to reach it.
type Client struct {
	SocketPath  string
	DialTimeout time.Duration
	IOTimeout   time.Duration

	// ProbeRetries bounds the liveness probe's retry loop: Probe dials up
	// to ProbeRetries+1 times before reporting Unreachable.
	ProbeRetries int
	ProbeBackoff time.Duration

	logger zerolog.Logger
}

// NewClient returns a Client with the teacher's conservative defaults:
// a five second dial timeout, three probe retries at a half-second
// backoff.
func NewClient(socketPath string) *Client {
	return &Client{
		SocketPath:   socketPath,
		DialTimeout:  5 * time.Second,
		IOTimeout:    5 * time.Second,
		ProbeRetries: 3,
		ProbeBackoff: 500 * time.Millisecond,
		logger:       log.WithComponent("frr"),
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.DialTimeout}
	return d.DialContext(ctx, "unix", c.SocketPath)
}

// roundTrip opens one connection, writes request terminated by a newline,
// reads one newline-terminated response line, and closes the connection.
// The wire framing is a line protocol of our own choosing: the daemon
// side of this socket is a small adapter in front of vtysh, not vtysh
// itself, so there is no fixed format to match.
func (c *Client) roundTrip(ctx context.Context, request string) (string, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", c.SocketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.IOTimeout))
	}

	if _, err := fmt.Fprintf(conn, "%s\n", request); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Probe checks routing daemon liveness, retrying up to ProbeRetries
// times with ProbeBackoff between attempts before reporting the channel
// unreachable. Every failed attempt (not just the final one) is counted
// against FrrProbeFailuresTotal.
func (c *Client) Probe(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= c.ProbeRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.ProbeBackoff):
			}
		}

		resp, err := c.roundTrip(ctx, "PING")
		if err == nil && resp == "PONG" {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("unexpected probe response %q", resp)
		}
		metrics.FrrProbeFailuresTotal.Inc()
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("routing daemon probe failed")
	}
	return fmt.Errorf("routing daemon unreachable after %d attempts: %w", c.ProbeRetries+1, lastErr)
}

// ApplyConfig pushes rendered routing configuration through the control
// channel tagged with gen, so the daemon side can log or reject stale
// generations. It is called once per successful reconcile, never
// retried: a failure here is surfaced to the caller as FrrApplyError and
// leaves the previously applied configuration live.
func (c *Client) ApplyConfig(ctx context.Context, gen gwtypes.GenId, rendered string) error {
	encoded := strings.ReplaceAll(rendered, "\n", "\\n")
	resp, err := c.roundTrip(ctx, fmt.Sprintf("APPLY %d %s", gen, encoded))
	if err != nil {
		return fmt.Errorf("apply config: %w", err)
	}
	if resp != "OK" {
		return fmt.Errorf("routing daemon rejected config: %s", resp)
	}
	return nil
}
