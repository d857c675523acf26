package flow

import (
	"hash/maphash"
	"sync"
	"time"
)

// shardCount is the number of independent lock domains a Table spreads its
// entries across. A power of two keeps the shard-selection mask cheap.
const shardCount = 64

type shard struct {
	mu      sync.RWMutex
	entries map[Key]*Info
}

// Table is a concurrent flow table sharded by key hash. Workers look up
// and insert flows without serializing on a single lock; the scavenger
// walks shards one at a time, never holding more than one shard's lock at
// once.
type Table struct {
	seed   maphash.Seed
	shards [shardCount]*shard
}

// NewTable returns an empty table.
func NewTable() *Table {
	t := &Table{seed: maphash.MakeSeed()}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[Key]*Info)}
	}
	return t
}

func (t *Table) shardFor(k Key) *shard {
	var h maphash.Hash
	h.SetSeed(t.seed)
	h.WriteString(k.String())
	return t.shards[h.Sum64()%shardCount]
}

// Lookup returns the flow entry for k, if present.
func (t *Table) Lookup(k Key) (*Info, bool) {
	s := t.shardFor(k)
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.entries[k]
	return info, ok
}

// Insert stores info under k, replacing any entry already there. Used both
// for standalone flows and for each half of a RelatedPair, which get
// different keys (one per direction) but the same table.
func (t *Table) Insert(k Key, info *Info) {
	s := t.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = info
}

// Remove deletes the entry for k, if present.
func (t *Table) Remove(k Key) {
	s := t.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, k)
}

// Len returns the total number of entries across all shards. O(shardCount):
// it takes each shard's read lock in turn.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Scavenge walks every shard once, transitioning Active flows past their
// expiry deadline to Expired, Expired flows to Removed, and deleting
// Removed flows from the table outright. It returns the number of entries
// deleted this pass.
//
// The two-step Expired -> Removed transition (rather than deleting on
// first expiry) gives any other component still holding a Related weak
// pointer one more scavenge interval to notice the flow died before the
// table drops its only remaining reference, keeping weak.Pointer.Value()
// resolution deterministic for one extra cycle instead of racing the GC.
func (t *Table) Scavenge(now time.Time) int {
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for k, info := range s.entries {
			switch info.Status() {
			case StatusActive:
				if info.IsExpired(now) {
					info.MarkExpired()
				}
			case StatusExpired:
				info.MarkRemoved()
			case StatusRemoved:
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
