// Package regionmanager owns the fixed Region array, the eviction policy
// that orders sealed regions for reclamation, and the pool of clean
// (never-written or already-reclaimed) regions available for a flusher to
// attach a buffer to (spec §4.2 "clean/active/sealing/sealed/reclaiming",
// §4.7 "RegionManager tracks ... a queue of clean region ids").
//
// The clean-region queue is a buffered channel sized to the region count,
// the same bounded-concurrency-slot shape as the teacher's TaskRunner
// (github.com/sharedcode/sop task_runner.go limiterChan): there, a buffered
// `chan bool` gates how many goroutines run at once; here a buffered
// `chan region.ID` gates which regions are free to acquire, with the
// region id carried as the payload instead of a bare token.
package regionmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/sharedcode/hybridstore/device"
	"github.com/sharedcode/hybridstore/eviction"
	"github.com/sharedcode/hybridstore/region"
)

// RegionManager is the fixed-size array of regions plus the clean-region
// queue and eviction ordering layered over it.
type RegionManager struct {
	device  device.Device
	regions []*region.Region
	evict   eviction.Policy

	clean chan region.ID

	mu     sync.Mutex
	sealed map[region.ID]bool
}

// New allocates a RegionManager with one Region handle per device region.
// No region starts in the clean queue; call SeedClean (fresh store) or Flash
// (post-recovery) to populate it.
func New(d device.Device, evict eviction.Policy) *RegionManager {
	n := d.Regions()
	regions := make([]*region.Region, n)
	for i := range regions {
		regions[i] = region.New(i, d)
	}
	return &RegionManager{
		device:  d,
		regions: regions,
		evict:   evict,
		clean:   make(chan region.ID, n),
		sealed:  make(map[region.ID]bool),
	}
}

// Count returns the fixed region count R.
func (m *RegionManager) Count() int { return len(m.regions) }

// Device returns the underlying storage device, for callers (the flusher)
// that need to issue the final write of a sealed region's buffer.
func (m *RegionManager) Device() device.Device { return m.device }

// CleanCount reports how many regions are currently sitting in the clean
// queue, consulted by the reclaimer to decide whether to keep reclaiming.
func (m *RegionManager) CleanCount() int { return len(m.clean) }

// Region returns the Region handle for id.
func (m *RegionManager) Region(id region.ID) *region.Region { return m.regions[id] }

// SeedClean marks ids as clean and available for acquisition; the
// reclaimer calls it to return each region it has reset.
func (m *RegionManager) SeedClean(ids ...region.ID) {
	for _, id := range ids {
		m.clean <- id
	}
}

// Flash pushes a batch of ids discovered clean by recovery's scan onto the
// queue in one call, mirroring the original's post-scan
// "clean_regions.flash()" that makes every unused region available at once
// rather than one at a time.
func (m *RegionManager) Flash(ids []region.ID) {
	for _, id := range ids {
		m.clean <- id
	}
}

// MarkSealed registers a region with the eviction policy once a flusher has
// sealed it (detached its buffer, made it read-only). Reclaim victims are
// chosen only from sealed regions.
func (m *RegionManager) MarkSealed(id region.ID) {
	m.mu.Lock()
	m.sealed[id] = true
	m.mu.Unlock()
	m.evict.Insert(id)
}

// RecordAccess notifies the eviction policy of a read hit, for orderings
// (LRU) that reorder on access.
func (m *RegionManager) RecordAccess(id region.ID) {
	m.evict.Access(id)
}

// PeekVictim returns the next region the eviction policy would reclaim,
// without removing it from the ordering.
func (m *RegionManager) PeekVictim() (region.ID, bool) {
	return m.evict.PeekNextVictim()
}

// Reclaimed drops id from the eviction ordering and sealed set once the
// reclaimer has drained and reset it; the caller is responsible for
// returning it to the clean queue via SeedClean/Flash after detaching.
func (m *RegionManager) Reclaimed(id region.ID) {
	m.mu.Lock()
	delete(m.sealed, id)
	m.mu.Unlock()
	m.evict.Remove(id)
}

// Acquire pops the next clean region id, attaches a fresh aligned buffer to
// it and returns the ready-to-write Region handle. It blocks until a clean
// region is available or ctx is done.
func (m *RegionManager) Acquire(ctx context.Context) (*region.Region, error) {
	select {
	case id := <-m.clean:
		r := m.regions[id]
		buf := m.device.IOBuffer(m.device.RegionSize(), m.device.RegionSize())
		if err := r.AttachBuffer(buf, m.device.Align()); err != nil {
			return nil, fmt.Errorf("regionmanager: acquire region %d: %w", id, err)
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire is the non-blocking form of Acquire, for callers that would
// rather report backpressure than stall.
func (m *RegionManager) TryAcquire() (*region.Region, bool, error) {
	select {
	case id := <-m.clean:
		r := m.regions[id]
		buf := m.device.IOBuffer(m.device.RegionSize(), m.device.RegionSize())
		if err := r.AttachBuffer(buf, m.device.Align()); err != nil {
			return nil, false, fmt.Errorf("regionmanager: acquire region %d: %w", id, err)
		}
		return r, true, nil
	default:
		return nil, false, nil
	}
}
