package nat

import (
	"sync"

	"github.com/hedgehog/gwcore/pkg/gwtypes"
)

// PoolKey identifies which stateful masquerade pool a flow draws from:
// one pool per (source VPC, destination VPC) pairing, since the target
// address space a flow gets translated into depends on which VPC it is
// entering, exactly like the stateless source-NAT table is keyed.
type PoolKey struct {
	SrcVpc gwtypes.VpcDiscriminant
	DstVpc gwtypes.VpcDiscriminant
}

// PoolTables is the top-level registry of stateful allocators, built by
// pkg/gwconfig during configuration derivation (after reserved
// port-forwarding prefixes have been carved out of each pool, per
// reserved_prefixes_ports) and consulted by the stateful NAT stage on
// every flow-table miss.
type PoolTables struct {
	mu    sync.RWMutex
	byKey map[PoolKey]*Pool
}

// NewPoolTables returns an empty registry.
func NewPoolTables() *PoolTables {
	return &PoolTables{byKey: make(map[PoolKey]*Pool)}
}

// Set installs pool as the allocator for key, replacing any previous one.
func (t *PoolTables) Set(key PoolKey, pool *Pool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey[key] = pool
}

// Get returns the allocator for key, if configured.
func (t *PoolTables) Get(key PoolKey) (*Pool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pool, ok := t.byKey[key]
	return pool, ok
}
