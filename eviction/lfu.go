package eviction

import (
	"sync"

	"github.com/sharedcode/hybridstore/region"
)

// LFU evicts the region with the fewest recorded read accesses. Victim
// selection samples a bounded number of candidates rather than scanning the
// whole set, following the teacher's sampled-eviction approach in
// github.com/sharedcode/sop/cache l2inmemorycache.sharded_map.go (which
// samples a handful of entries and evicts the one with the earliest
// expiration instead of walking the full shard).
type LFU struct {
	mu    sync.Mutex
	freq  map[region.ID]uint64
	order []region.ID // insertion order, for deterministic sampling
}

const lfuSampleSize = 5

func NewLFU() *LFU {
	return &LFU{freq: make(map[region.ID]uint64)}
}

func (l *LFU) Insert(id region.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.freq[id]; !ok {
		l.order = append(l.order, id)
	}
	l.freq[id] = 0
}

func (l *LFU) Remove(id region.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.freq, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *LFU) Access(id region.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.freq[id]; ok {
		l.freq[id]++
	}
}

func (l *LFU) PeekNextVictim() (region.ID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.order) == 0 {
		return 0, false
	}
	sample := l.order
	if len(sample) > lfuSampleSize {
		sample = sample[:lfuSampleSize]
	}
	victim := sample[0]
	min := l.freq[victim]
	for _, id := range sample[1:] {
		if c := l.freq[id]; c < min {
			min = c
			victim = id
		}
	}
	return victim, true
}
