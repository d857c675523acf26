package flow

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// Key identifies one direction of a flow: the 5-tuple plus the VPC the
// packet was classified into on ingress (two packets with identical
// addresses and ports but different source VPCs are different flows).
type Key struct {
	SrcVpc   gwtypes.VpcDiscriminant
	SrcAddr  netip.Addr
	DstAddr  netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol gwtypes.Protocol
}

func (k Key) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d/%s", k.SrcVpc, k.SrcAddr, k.SrcPort, k.DstAddr, k.DstPort, k.Protocol)
}

// Status is a flow's lifecycle state. Transitions only ever move forward:
// Active -> Expired -> Removed. A flow is never resurrected; a new
// connection with the same key gets a new Info.
type Status int32

const (
	StatusActive Status = iota
	StatusExpired
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// NatState and PortFwState are the same supporting-state payloads a flow
// can carry; they are opaque to this package. NatState is populated by
// pkg/pipeline's stateful NAT stage; no other package in this module sets
// PortFwState. They're guarded by mu rather than made atomic
// because they're multi-field structs assigned once at flow creation and
// read thereafter -- a pointer swap under a lock is simpler than atomic.Pointer
// plus a memory-ordering argument for structs nobody mutates in place.
type Info struct {
	expiresAtNano atomic.Int64
	status        atomic.Int32

	mu          sync.Mutex
	dstVpc      *gwtypes.VpcDiscriminant
	natState    any
	portFwState any

	related weak.Pointer[Info]
}

// New creates a standalone flow entry expiring at expiresAt.
func New(expiresAt time.Time) *Info {
	info := &Info{}
	info.expiresAtNano.Store(expiresAt.UnixNano())
	info.status.Store(int32(StatusActive))
	return info
}

// RelatedPair creates two flow entries, each weakly referencing the other.
// Used for bidirectional connections (the reverse 5-tuple of a stateful
// NAT'ed flow) where looking up the mirror flow by key on every packet
// would cost an extra table lookup per direction.
func RelatedPair(expiresAt time.Time) (*Info, *Info) {
	one := New(expiresAt)
	two := New(expiresAt)
	one.related = weak.Make(two)
	two.related = weak.Make(one)
	return one, two
}

// Related returns the paired flow, if it still exists (the table may have
// scavenged it already, in which case the returned ok is false).
func (i *Info) Related() (*Info, bool) {
	other := i.related.Value()
	return other, other != nil
}

// ExpiresAt returns the current expiry deadline.
func (i *Info) ExpiresAt() time.Time {
	return time.Unix(0, i.expiresAtNano.Load())
}

// Status returns the current lifecycle state.
func (i *Info) Status() Status {
	return Status(i.status.Load())
}

// IsExpired reports whether now is past the flow's expiry deadline,
// irrespective of its recorded status (a flow can be logically expired for
// one poll cycle before the scavenger transitions its status).
func (i *Info) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt())
}

// Extend pushes the expiry deadline forward by duration from now, refusing
// to do so once the flow has been marked expired or removed.
func (i *Info) Extend(duration time.Duration) bool {
	if Status(i.status.Load()) != StatusActive {
		return false
	}
	newDeadline := time.Now().Add(duration).UnixNano()
	for {
		cur := i.expiresAtNano.Load()
		if newDeadline <= cur {
			return true
		}
		if i.expiresAtNano.CompareAndSwap(cur, newDeadline) {
			return true
		}
	}
}

// Close pulls the expiry deadline in to no later than now+window,
// leaving it alone if it already expires sooner. Used on TCP FIN/RST to
// start a short closing window without granting the flow any more life
// than it already had.
func (i *Info) Close(window time.Duration) bool {
	if Status(i.status.Load()) != StatusActive {
		return false
	}
	proposed := time.Now().Add(window).UnixNano()
	for {
		cur := i.expiresAtNano.Load()
		if proposed >= cur {
			return true
		}
		if i.expiresAtNano.CompareAndSwap(cur, proposed) {
			return true
		}
	}
}

// MarkExpired transitions Active -> Expired. It is a no-op (returning
// false) if the flow is not currently Active.
func (i *Info) MarkExpired() bool {
	return i.status.CompareAndSwap(int32(StatusActive), int32(StatusExpired))
}

// MarkRemoved transitions Expired -> Removed. It is a no-op (returning
// false) if the flow is not currently Expired.
func (i *Info) MarkRemoved() bool {
	return i.status.CompareAndSwap(int32(StatusExpired), int32(StatusRemoved))
}

// SetDstVpc records the resolved destination VPC for this flow so later
// packets on the same connection skip pkg/resolver entirely.
func (i *Info) SetDstVpc(vpc gwtypes.VpcDiscriminant) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.dstVpc = &vpc
}

// DstVpc returns the resolved destination VPC, if one has been recorded.
func (i *Info) DstVpc() (gwtypes.VpcDiscriminant, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.dstVpc == nil {
		return gwtypes.VpcDiscriminant{}, false
	}
	return *i.dstVpc, true
}

// SetNatState records the NAT mapping chosen for this flow's first packet.
func (i *Info) SetNatState(state any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.natState = state
}

// NatState returns the recorded NAT mapping, if any.
func (i *Info) NatState() any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.natState
}

// SetPortFwState records the port-forwarding rule applied to this flow's
// first packet.
func (i *Info) SetPortFwState(state any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.portFwState = state
}

// PortFwState returns the recorded port-forwarding state, if any.
func (i *Info) PortFwState() any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.portFwState
}
