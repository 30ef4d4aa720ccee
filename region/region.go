// Package region implements the per-region state machine (spec §4.2): an
// append-only aligned buffer guarded by a single mutex, cycling
// through clean/active/sealing/sealed/reclaiming states as tracked by the
// writers/buffered-reader/physical-reader counters.
//
// The locking shape follows the teacher's registry/hashmap file-region
// guards (github.com/sharedcode/sop/fs hashmap_file_region.go) generalized
// from a single mutex-per-slot to the richer reader/writer/reclaim
// cooperative-exclusion rule the cache engine's region lifecycle requires.
// Rather than the coroutine poll-sleep loop the upstream design notes flag
// as a stopgap, waiters here block on a sync.Cond that every counter
// decrement (and every exclusive-section release) broadcasts on.
package region

import (
	"context"
	"fmt"
	"sync"

	"github.com/sharedcode/hybridstore/device"
	"github.com/sharedcode/hybridstore/entry"
)

// ID identifies a region in [0, R).
type ID = int

// Version is a monotonic per-region counter; 0 is a wildcard meaning "any version".
type Version = uint32

// View addresses a persisted entry: the region it lives in, its byte offset
// and length, and the region version captured when the entry was written.
type View struct {
	RegionID ID
	Offset   int64
	Len      int64
	Version  Version
}

// WriteSlice is a reservation into the region's attached buffer returned by
// Allocate; callers write their entry payload into Bytes and then call
// Release to make it visible to readers.
type WriteSlice struct {
	r       *Region
	Bytes   []byte
	Offset  int64
	version Version
}

// Release decrements the writer count and wakes any exclusive waiters.
func (s WriteSlice) Release() {
	s.r.mu.Lock()
	s.r.writers--
	s.r.cond.Broadcast()
	s.r.mu.Unlock()
}

// View returns the on-disk view for this slice, to be recorded in the
// catalog once the entry bytes have been fully written.
func (s WriteSlice) View() View {
	return View{RegionID: s.r.id, Offset: s.Offset, Len: int64(len(s.Bytes)), Version: s.version}
}

// AllocateOutcome discriminates the three outcomes of Allocate.
type AllocateOutcome int

const (
	// AllocateOk means the slice was reserved.
	AllocateOk AllocateOutcome = iota
	// AllocateFull means the buffer could not fit size plus the footer
	// reservation; Tail covers the footer (to be zeroed by the caller) and
	// Remain is the leftover byte count ahead of the footer.
	AllocateFull
	// AllocateNone is a transient failure (no buffer attached, or the
	// region is momentarily held exclusively for seal/reclaim).
	AllocateNone
)

// AllocateResult is the outcome of Allocate.
type AllocateResult struct {
	Outcome AllocateOutcome
	Slice   WriteSlice
	Tail    []byte
	Remain  int
}

// ReadView is a read handle returned by Load: either a zero-copy slice into
// the attached dirty buffer (buffered read) or a freshly allocated physical
// read buffer. Release must be called exactly once.
type ReadView struct {
	r        *Region
	Bytes    []byte
	buffered bool
}

// Release decrements the appropriate reader counter.
func (v ReadView) Release() {
	v.r.mu.Lock()
	if v.buffered {
		v.r.bufferedReaders--
	} else {
		v.r.physicalReaders--
	}
	v.r.cond.Broadcast()
	v.r.mu.Unlock()
}

// Region is a contiguous, aligned range of the device plus its lifecycle
// state. All counter/buffer mutations happen under mu; device I/O never
// happens while mu is held.
type Region struct {
	id     ID
	device device.Device

	mu   sync.Mutex
	cond *sync.Cond

	version Version

	buffer []byte // nil unless this region is the active append target
	len    int    // bytes written into buffer so far (includes header)

	writers         int
	bufferedReaders int
	physicalReaders int

	// exclusive is held for the duration of a seal (flush) or reclaim
	// section; Allocate/Load block until it clears.
	exclusiveHeld bool
}

// New creates a region handle bound to the given device region id. Regions
// are created once at open; AttachBuffer/DetachBuffer cycle them through
// their lifecycle thereafter. The version starts at 1 so that every view
// carries a non-zero version (0 is Load's wildcard) and a reclaim is
// always detected.
func New(id ID, d device.Device) *Region {
	r := &Region{id: id, device: d, version: 1}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *Region) ID() ID { return r.id }

// Version returns the region's current generation.
func (r *Region) Version() Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Counters reports the current writer/reader counts, for diagnostics and tests.
func (r *Region) Counters() (writers, bufferedReaders, physicalReaders int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writers, r.bufferedReaders, r.physicalReaders
}

// HasBuffer reports whether a dirty buffer is currently attached.
func (r *Region) HasBuffer() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer != nil
}

// AttachBuffer installs buf as the region's active append target. It
// requires writers == 0 && bufferedReaders == 0 (the caller has already
// drained the prior generation via Exclusive or this is a fresh clean
// region). It writes the RegionHeader and sets len to the aligned header size.
func (r *Region) AttachBuffer(buf []byte, align int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writers != 0 || r.bufferedReaders != 0 {
		return fmt.Errorf("hybridstore/region: cannot attach buffer to region %d: writers=%d buffered_readers=%d", r.id, r.writers, r.bufferedReaders)
	}
	entry.RegionHeader{Magic: entry.RegionMagic}.Write(buf)
	r.buffer = buf
	r.len = align
	return nil
}

// DetachBuffer returns the buffer to the caller (the flusher, which writes
// it out to the device) along with the number of bytes actually written
// into it, and clears the region's active state.
func (r *Region) DetachBuffer() (buf []byte, writtenLen int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf = r.buffer
	writtenLen = r.len
	r.buffer = nil
	r.len = 0
	return buf, writtenLen
}

// Allocate reserves size bytes at the tail of the attached buffer, keeping
// the last `align` bytes reserved as the region's footer. It increments
// writers on success; callers must Release the returned slice.
func (r *Region) Allocate(size, align int) AllocateResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.exclusiveHeld {
		r.cond.Wait()
	}

	if r.buffer == nil {
		return AllocateResult{Outcome: AllocateNone}
	}
	capacity := len(r.buffer)
	if r.len+size+align > capacity {
		remain := capacity - align - r.len
		if remain < 0 {
			remain = 0
		}
		tail := r.buffer[r.len+remain : capacity]
		return AllocateResult{Outcome: AllocateFull, Tail: tail, Remain: remain}
	}

	offset := r.len
	r.len += size
	r.writers++
	return AllocateResult{
		Outcome: AllocateOk,
		Slice: WriteSlice{
			r:       r,
			Bytes:   r.buffer[offset : offset+size],
			Offset:  int64(offset),
			version: r.version,
		},
	}
}

// Load resolves a read at the given offset/length. If expectedVersion is
// non-zero and does not match the region's current version, Load returns
// (ReadView{}, false, nil): the entry is gone and the caller should purge
// the catalog entry. Otherwise it returns a buffered read (if a buffer is
// attached) or issues physical device reads covering the requested range.
func (r *Region) Load(ctx context.Context, offset, length int64, expectedVersion Version) (ReadView, bool, error) {
	r.mu.Lock()
	for r.exclusiveHeld {
		r.cond.Wait()
	}
	if expectedVersion != 0 && expectedVersion != r.version {
		r.mu.Unlock()
		return ReadView{}, false, nil
	}
	if r.buffer != nil {
		r.bufferedReaders++
		buf := r.buffer[offset : offset+length]
		r.mu.Unlock()
		return ReadView{r: r, Bytes: buf, buffered: true}, true, nil
	}
	r.physicalReaders++
	r.mu.Unlock()

	ioSize := int64(r.device.IOSize())
	alignedStart := (offset / ioSize) * ioSize
	alignedEnd := int64(entry.AlignUp(uint64(ioSize), uint64(offset+length)))
	buf := r.device.IOBuffer(int(alignedEnd-alignedStart), int(alignedEnd-alignedStart))

	n := (alignedEnd - alignedStart) / ioSize
	for i := int64(0); i < n; i++ {
		chunk := buf[i*ioSize : (i+1)*ioSize]
		if _, err := r.device.Read(ctx, chunk, r.id, alignedStart+i*ioSize); err != nil {
			r.mu.Lock()
			r.physicalReaders--
			r.cond.Broadcast()
			r.mu.Unlock()
			return ReadView{}, false, err
		}
	}

	relStart := offset - alignedStart
	return ReadView{r: r, Bytes: buf[relStart : relStart+length], buffered: false}, true, nil
}

// ReadRaw issues a physical device read of [offset, offset+length) bypassing
// the buffered-read path and the exclusive-wait/reader-counter bookkeeping
// Load performs. It is for the reclaimer and recovery scan only: the
// reclaimer calls it while already holding the exclusive gate from
// Exclusive (so Load's own wait-for-exclusive-to-clear loop would
// otherwise deadlock against itself), and recovery calls it before any
// concurrent access to the region begins at all.
func (r *Region) ReadRaw(ctx context.Context, offset, length int64) ([]byte, error) {
	ioSize := int64(r.device.IOSize())
	alignedStart := (offset / ioSize) * ioSize
	alignedEnd := int64(entry.AlignUp(uint64(ioSize), uint64(offset+length)))
	buf := r.device.IOBuffer(int(alignedEnd-alignedStart), int(alignedEnd-alignedStart))

	n := (alignedEnd - alignedStart) / ioSize
	for i := int64(0); i < n; i++ {
		chunk := buf[i*ioSize : (i+1)*ioSize]
		if _, err := r.device.Read(ctx, chunk, r.id, alignedStart+i*ioSize); err != nil {
			return nil, err
		}
	}
	relStart := offset - alignedStart
	return buf[relStart : relStart+length], nil
}

// Exclusive blocks until no other exclusive section is active and the
// counters disallowed by the allow* flags reach zero, then holds the
// exclusive gate (blocking new Allocate/Load calls) until the returned
// release function is invoked. It is used by flush (no writers, no
// physical readers) and reclaim (no readers or writers at all).
func (r *Region) Exclusive(ctx context.Context, allowWriters, allowBufferedReaders, allowPhysicalReaders bool) (func(), error) {
	cancelWake := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.cond.Broadcast()
		case <-cancelWake:
		}
	}()
	defer close(cancelWake)

	r.mu.Lock()
	for r.exclusiveHeld ||
		!((allowWriters || r.writers == 0) &&
			(allowBufferedReaders || r.bufferedReaders == 0) &&
			(allowPhysicalReaders || r.physicalReaders == 0)) {
		if err := ctx.Err(); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.cond.Wait()
	}
	r.exclusiveHeld = true
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		r.exclusiveHeld = false
		r.cond.Broadcast()
		r.mu.Unlock()
	}
	return release, nil
}

// Reclaim bumps the region's version, invalidating every outstanding view
// that still carries the old generation. Callers must hold the exclusive
// gate (i.e. call this between Exclusive and its release).
func (r *Region) Reclaim() Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version++
	return r.version
}
