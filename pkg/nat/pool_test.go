package nat

import (
	"net/netip"
	"testing"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocateNeverHandsOutPortZero(t *testing.T) {
	addrs := []netip.Addr{netip.MustParseAddr("172.16.0.1")}
	p := NewPool(addrs, nil)

	seen := make(map[uint16]bool)
	for i := 0; i < 1000; i++ {
		_, port, err := p.Allocate(0)
		require.NoError(t, err)
		require.NotZero(t, port)
		require.False(t, seen[port], "port %d allocated twice without release", port)
		seen[port] = true
	}
}

func TestPoolReleaseMakesPortAvailableAgain(t *testing.T) {
	addrs := []netip.Addr{netip.MustParseAddr("172.16.0.1")}
	p := NewPool(addrs, nil)

	addr, port, err := p.Allocate(0)
	require.NoError(t, err)

	before := p.FreePorts()
	p.Release(addr, port)
	require.Equal(t, before+1, p.FreePorts())

	_, reusedPort, err := p.Allocate(port)
	require.NoError(t, err)
	require.Equal(t, port, reusedPort)
}

func TestPoolReservedPortsAreNeverAllocated(t *testing.T) {
	addr := netip.MustParseAddr("172.16.0.1")
	reserved := map[netip.Addr][]gwtypes.PortRange{
		addr: {{Start: 8000, End: 8010}},
	}
	p := NewPool([]netip.Addr{addr}, reserved)

	for i := 0; i < 70000; i++ {
		_, port, err := p.Allocate(0)
		if err != nil {
			break
		}
		require.False(t, port >= 8000 && port <= 8010, "reserved port %d was allocated", port)
	}
}

func TestPoolExhaustionReturnsError(t *testing.T) {
	addr := netip.MustParseAddr("172.16.0.1")
	p := NewPool([]netip.Addr{addr}, nil)

	allocated := 0
	for {
		_, _, err := p.Allocate(0)
		if err != nil {
			break
		}
		allocated++
	}
	require.Equal(t, 65535, allocated)

	_, _, err := p.Allocate(0)
	require.Error(t, err)
}

func TestPoolRoundRobinsAcrossAddresses(t *testing.T) {
	addrs := []netip.Addr{
		netip.MustParseAddr("172.16.0.1"),
		netip.MustParseAddr("172.16.0.2"),
	}
	p := NewPool(addrs, nil)

	used := make(map[netip.Addr]int)
	for i := 0; i < 100; i++ {
		addr, _, err := p.Allocate(0)
		require.NoError(t, err)
		used[addr]++
	}
	require.Len(t, used, 2)
}
