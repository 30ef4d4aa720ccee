package eviction

import (
	"sync"

	"github.com/sharedcode/hybridstore/region"
)

// FIFO evicts the region that was sealed longest ago, ignoring access
// activity. Access is a no-op.
type FIFO struct {
	mu sync.Mutex
	l  *list
}

func NewFIFO() *FIFO {
	return &FIFO{l: newList()}
}

func (f *FIFO) Insert(id region.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.l.pushFront(id)
}

func (f *FIFO) Remove(id region.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.l.remove(id)
}

func (f *FIFO) Access(region.ID) {}

func (f *FIFO) PeekNextVictim() (region.ID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.l.tail == nil {
		return 0, false
	}
	return f.l.tail.id, true
}
