package eviction

import (
	"sync"

	"github.com/sharedcode/hybridstore/region"
)

// LRU evicts the region with the least recent read access (MRU ordering at
// the head, victim at the tail), following the teacher's mru.go recency
// discipline.
type LRU struct {
	mu sync.Mutex
	l  *list
}

func NewLRU() *LRU {
	return &LRU{l: newList()}
}

func (m *LRU) Insert(id region.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.l.pushFront(id)
}

func (m *LRU) Remove(id region.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.l.remove(id)
}

func (m *LRU) Access(id region.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.l.moveToFront(id)
}

func (m *LRU) PeekNextVictim() (region.ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.l.tail == nil {
		return 0, false
	}
	return m.l.tail.id, true
}
