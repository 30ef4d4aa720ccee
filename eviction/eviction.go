// Package eviction implements the pluggable per-region ordering used to
// choose a reclamation victim (spec §2 "Eviction policy binding", §4.7).
// FIFO and LRU orderings share the teacher's intrusive doubly-linked list
// (github.com/sharedcode/sop/cache doublylinkedlist.go / mru.go), adapted
// from an MRU-over-key index to an MRU-over-region-id index: RegionManager
// calls Insert once per sealed region and Access on read hits; the
// reclaimer calls PeekVictim/Remove.
package eviction

import "github.com/sharedcode/hybridstore/region"

// Policy orders regions for eviction. Implementations must be safe for
// concurrent use.
type Policy interface {
	// Insert adds id to the policy, to be called once a region is sealed
	// (or at recovery time for regions found valid on disk).
	Insert(id region.ID)
	// Remove drops id from the policy (e.g. once reclaimed).
	Remove(id region.ID)
	// Access records a read hit against id, for policies (LRU) that reorder on access.
	Access(id region.ID)
	// PeekNextVictim returns the next region the policy would evict,
	// without removing it. ok is false if the policy holds no regions.
	PeekNextVictim() (id region.ID, ok bool)
}

type node struct {
	id         region.ID
	prev, next *node
}

// list is a minimal doubly linked list of region ids, shared by the FIFO
// and LRU orderings below.
type list struct {
	head, tail *node
	size       int
	index      map[region.ID]*node
}

func newList() *list {
	return &list{index: make(map[region.ID]*node)}
}

func (l *list) pushFront(id region.ID) *node {
	n := &node{id: id, next: l.head}
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.size++
	l.index[id] = n
	return n
}

func (l *list) pushBack(id region.ID) *node {
	n := &node{id: id, prev: l.tail}
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.size++
	l.index[id] = n
	return n
}

func (l *list) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.next, n.prev = nil, nil
	l.size--
}

func (l *list) remove(id region.ID) {
	if n, ok := l.index[id]; ok {
		l.unlink(n)
		delete(l.index, id)
	}
}

func (l *list) moveToFront(id region.ID) {
	n, ok := l.index[id]
	if !ok {
		return
	}
	if n == l.head {
		return
	}
	l.unlink(n)
	n.prev, n.next = nil, l.head
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.index[id] = n
	l.size++
}
