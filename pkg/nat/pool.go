package nat

import (
	"fmt"
	"math/bits"
	"net/netip"
	"sync"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// portGrid is a 256x256 occupancy grid over the 16-bit port space of a
// single address: 256 "high byte" buckets, each tracking which of its 256
// "low byte" slots are free. bucketFree marks which buckets currently have
// at least one free slot, so allocation is a trailing-zero scan over 4
// uint64 words to find a candidate bucket, then another such scan within
// that bucket -- O(1) regardless of how full the grid is. clearLow drops a
// bucket's bucketFree bit as soon as its last slot is taken, so the first
// scan never lands on an exhausted bucket.
type portGrid struct {
	bucketFree [4]uint64    // 256 bits, one per high byte
	low        [256][4]uint64 // per high byte: 256 bits, one per low byte
	freeCount  int
}

func newPortGrid() *portGrid {
	g := &portGrid{}
	for hi := 0; hi < 256; hi++ {
		for w := range g.low[hi] {
			g.low[hi][w] = ^uint64(0)
		}
		setBit(g.bucketFree[:], hi)
	}
	// port 0 (high=0, low=0) is never allocated.
	g.clearLow(0, 0)
	g.freeCount = 65536 - 1
	return g
}

func setBit(words []uint64, i int) { words[i/64] |= 1 << uint(i%64) }
func clearBit(words []uint64, i int) { words[i/64] &^= 1 << uint(i%64) }
func testBit(words []uint64, i int) bool { return words[i/64]&(1<<uint(i%64)) != 0 }

func (g *portGrid) clearLow(hi, lo int) {
	if !testBit(g.low[hi][:], lo) {
		return
	}
	clearBit(g.low[hi][:], lo)
	if isZeroWords(g.low[hi][:]) {
		clearBit(g.bucketFree[:], hi)
	}
}

func (g *portGrid) setLow(hi, lo int) {
	if testBit(g.low[hi][:], lo) {
		return
	}
	setBit(g.low[hi][:], lo)
	setBit(g.bucketFree[:], hi)
}

func isZeroWords(words []uint64) bool {
	for _, w := range words {
		if w != 0 {
			return false
		}
	}
	return true
}

func firstSetBit(words []uint64) (int, bool) {
	for w, word := range words {
		if word != 0 {
			return w*64 + bits.TrailingZeros64(word), true
		}
	}
	return 0, false
}

// Reserve marks port as unavailable for allocation (used to carve out
// port-forwarding exclusions from a stateful pool).
func (g *portGrid) Reserve(port uint16) {
	hi, lo := int(port>>8), int(port&0xff)
	if testBit(g.low[hi][:], lo) {
		g.freeCount--
	}
	g.clearLow(hi, lo)
}

// Allocate returns a free port, or false if the grid is exhausted.
func (g *portGrid) Allocate() (uint16, bool) {
	hi, ok := firstSetBit(g.bucketFree[:])
	if !ok {
		return 0, false
	}
	lo, ok := firstSetBit(g.low[hi][:])
	if !ok {
		return 0, false
	}
	g.clearLow(hi, lo)
	g.freeCount--
	return uint16(hi<<8 | lo), true
}

// AllocateExact tries to reserve a specific port (used when a flow's
// natural port is itself free, avoiding an unnecessary rewrite).
func (g *portGrid) AllocateExact(port uint16) bool {
	hi, lo := int(port>>8), int(port&0xff)
	if !testBit(g.low[hi][:], lo) {
		return false
	}
	g.clearLow(hi, lo)
	g.freeCount--
	return true
}

// Release returns port to the free set.
func (g *portGrid) Release(port uint16) {
	hi, lo := int(port>>8), int(port&0xff)
	if port == 0 {
		return
	}
	g.setLow(hi, lo)
	g.freeCount++
}

// addrPortSpace pairs one pool address with its port occupancy grid.
type addrPortSpace struct {
	addr netip.Addr
	grid *portGrid
}

// Pool is a stateful NAT address/port allocator for one protocol. A Pool
// is built once per (direction, protocol) during configuration derivation
// and is safe for concurrent Allocate/Release from multiple workers once
// published, guarded by its own mutex -- unlike pkg/lpm's Trie, the pool
// is mutated continuously at packet rate, not swapped wholesale.
type Pool struct {
	mu        sync.Mutex
	spaces    []*addrPortSpace
	index     map[netip.Addr]int
	available []int
	cursor    int
}

// NewPool builds a pool over addrs, each starting with a full port grid
// except for ports named in reserved[addr], which are pre-excluded --
// the shadowing behavior needed when a port-forwarding rule claims a port
// range on an address that is also a masquerade pool member.
func NewPool(addrs []netip.Addr, reserved map[netip.Addr][]gwtypes.PortRange) *Pool {
	p := &Pool{
		index: make(map[netip.Addr]int, len(addrs)),
	}
	for i, a := range addrs {
		grid := newPortGrid()
		for _, r := range reserved[a] {
			for port := int(r.Start); port <= int(r.End); port++ {
				grid.Reserve(uint16(port))
			}
		}
		p.spaces = append(p.spaces, &addrPortSpace{addr: a, grid: grid})
		p.index[a] = i
		p.available = append(p.available, i)
	}
	return p
}

// Allocate hands out a free (address, port) pair, preferring preferredPort
// on whichever address offers it first, else the next free port on the
// next available address in round-robin order.
func (p *Pool) Allocate(preferredPort uint16) (netip.Addr, uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.available) == 0 {
		return netip.Addr{}, 0, fmt.Errorf("nat: pool exhausted")
	}
	if preferredPort != 0 {
		for _, idx := range p.available {
			if p.spaces[idx].grid.AllocateExact(preferredPort) {
				p.reindexAfterAllocate(idx)
				return p.spaces[idx].addr, preferredPort, nil
			}
		}
	}
	attempts := len(p.available)
	for i := 0; i < attempts; i++ {
		idx := p.available[p.cursor%len(p.available)]
		p.cursor++
		port, ok := p.spaces[idx].grid.Allocate()
		if ok {
			addr := p.spaces[idx].addr
			p.reindexAfterAllocate(idx)
			return addr, port, nil
		}
	}
	return netip.Addr{}, 0, fmt.Errorf("nat: pool exhausted")
}

func (p *Pool) reindexAfterAllocate(idx int) {
	if p.spaces[idx].grid.freeCount > 0 {
		return
	}
	for i, a := range p.available {
		if a == idx {
			p.available = append(p.available[:i], p.available[i+1:]...)
			break
		}
	}
}

// Release returns (addr, port) to the pool, reactivating addr in the
// available rotation if it had previously been fully exhausted.
func (p *Pool) Release(addr netip.Addr, port uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.index[addr]
	if !ok {
		return
	}
	space := p.spaces[idx]
	wasExhausted := space.grid.freeCount == 0
	space.grid.Release(port)
	if wasExhausted {
		p.available = append(p.available, idx)
	}
}

// FreePorts reports the total number of unallocated ports across the pool.
func (p *Pool) FreePorts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, s := range p.spaces {
		total += s.grid.freeCount
	}
	return total
}

// Addresses returns every address this pool manages.
func (p *Pool) Addresses() []netip.Addr {
	out := make([]netip.Addr, len(p.spaces))
	for i, s := range p.spaces {
		out[i] = s.addr
	}
	return out
}
