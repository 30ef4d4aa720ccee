// Package catalog implements the sharded in-memory index (spec §4.3): the
// sole source of truth mapping a key to either an in-flight value or an
// on-disk region view.
//
// The shard layout — a fixed power-of-two fan-out of independently-locked
// maps keyed by a hash of the serialized key — is grounded on the teacher's
// L2 in-memory cache sharded map (github.com/sharedcode/sop/cache
// l2inmemorycache.sharded_map.go), generalized from a fixed 256-way FNV
// shard table to a configurable catalog_bits fan-out using a stable 64-bit
// hash so the shard count can be tuned per Config.
package catalog

import (
	"hash/fnv"
	"sync"

	"github.com/sharedcode/hybridstore/region"
)

// Inflight is an admitted value resident only in memory, pending flush.
type Inflight struct {
	Key   []byte
	Value []byte
}

// Item is a catalog entry: a monotonic sequence tag plus either an Inflight
// value or a Region view. Exactly one of Inflight/Region is set, discriminated
// by InRegion.
type Item struct {
	Sequence uint64
	InRegion bool
	Inflight Inflight
	Region   region.View
}

type shard struct {
	mu    sync.RWMutex
	items map[string]Item
}

// Catalog is the sharded key -> Item map.
type Catalog struct {
	shards []*shard
	mask   uint64
}

// New creates a Catalog with 2^bits shards.
func New(bits int) *Catalog {
	n := 1 << uint(bits)
	c := &Catalog{shards: make([]*shard, n), mask: uint64(n - 1)}
	for i := range c.shards {
		c.shards[i] = &shard{items: make(map[string]Item)}
	}
	return c
}

func (c *Catalog) shardFor(key []byte) *shard {
	h := fnv.New64a()
	h.Write(key)
	return c.shards[h.Sum64()&c.mask]
}

// Insert records item under key. Per the tie-break rule, the new item
// supersedes the old one unless its Sequence is strictly less than the
// existing one; a lesser sequence is silently dropped, preserving
// last-admission-wins under reorder between flushers. Equal sequences
// replace rather than drop, so a key's inflight item (Sequence N) is
// superseded by its own on-disk migration (also Sequence N) once the
// flusher writes it — otherwise an entry would never migrate out of
// Inflight and into a Region view.
func (c *Catalog) Insert(key []byte, item Item) {
	s := c.shardFor(key)
	k := string(key)
	s.mu.Lock()
	if existing, ok := s.items[k]; ok && existing.Sequence > item.Sequence {
		s.mu.Unlock()
		return
	}
	s.items[k] = item
	s.mu.Unlock()
}

// Lookup returns the item for key, if any. Invariant 1 (spec §3) is enforced
// by the caller: if the returned item is a Region view whose version no
// longer matches the owning region, the caller must Remove it and report a miss.
func (c *Catalog) Lookup(key []byte) (Item, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	it, ok := s.items[string(key)]
	s.mu.RUnlock()
	return it, ok
}

// Remove deletes key, returning the removed item if present.
func (c *Catalog) Remove(key []byte) (Item, bool) {
	s := c.shardFor(key)
	k := string(key)
	s.mu.Lock()
	it, ok := s.items[k]
	if ok {
		delete(s.items, k)
	}
	s.mu.Unlock()
	return it, ok
}

// Clear empties every shard.
func (c *Catalog) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.items = make(map[string]Item)
		s.mu.Unlock()
	}
}

// KeyedItem pairs a key with its catalog item, returned by TakeRegion.
type KeyedItem struct {
	Key  []byte
	Item Item
}

// TakeRegion enumerates and removes all entries whose Region view points at
// regionID, invoked by the reclaimer once a victim has been drained.
func (c *Catalog) TakeRegion(regionID region.ID) []KeyedItem {
	var out []KeyedItem
	for _, s := range c.shards {
		s.mu.Lock()
		for k, it := range s.items {
			if it.InRegion && it.Region.RegionID == regionID {
				out = append(out, KeyedItem{Key: []byte(k), Item: it})
				delete(s.items, k)
			}
		}
		s.mu.Unlock()
	}
	return out
}

// Count returns the total number of entries across all shards.
func (c *Catalog) Count() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}
