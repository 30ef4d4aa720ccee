// Package flusher drains admitted entries into the active region's buffer
// and seals it to the device once it fills (spec §4.2 "active -> sealing ->
// sealed", §4.6 "flusher pipeline"). Enqueue records the entry in the
// catalog as in-flight immediately (so a concurrent Lookup sees it before
// the physical write lands), then hands it to a single background
// goroutine that performs the actual allocate/write/catalog-migrate cycle,
// following the teacher's single-worker-goroutine-plus-buffered-channel
// shape (github.com/sharedcode/sop job_processor.go).
package flusher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sharedcode/hybridstore/catalog"
	"github.com/sharedcode/hybridstore/compression"
	"github.com/sharedcode/hybridstore/device"
	"github.com/sharedcode/hybridstore/entry"
	"github.com/sharedcode/hybridstore/metrics"
	"github.com/sharedcode/hybridstore/region"
	"github.com/sharedcode/hybridstore/regionmanager"
)

type queuedEntry struct {
	key, value  []byte
	compression entry.Compression
	sequence    uint64
}

// Flusher owns one active region at a time and the queue of entries
// waiting to land in it.
type Flusher struct {
	rm      *regionmanager.RegionManager
	cat     *catalog.Catalog
	device  device.Device
	metrics *metrics.Sink
	align   int

	queue chan queuedEntry
	stop  chan struct{}
	done  chan struct{}

	current *region.Region
}

// New builds a Flusher with a queue depth of capacity entries.
func New(rm *regionmanager.RegionManager, cat *catalog.Catalog, sink *metrics.Sink, capacity int) *Flusher {
	return &Flusher{
		rm:      rm,
		cat:     cat,
		device:  rm.Device(),
		metrics: sink,
		align:   rm.Device().Align(),
		queue:   make(chan queuedEntry, capacity),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background loop. The first region is acquired lazily
// on the first write rather than here, so Open does not block on a clean
// region being available when a store is reopened with every region sealed
// and the reclaimer has not yet freed one.
func (f *Flusher) Start(ctx context.Context) {
	go f.run(ctx)
}

// Enqueue records key/value as in-flight in the catalog and hands it to the
// background loop. It returns once the entry is queued, not once it is
// physically on disk.
func (f *Flusher) Enqueue(ctx context.Context, key, value []byte, compression entry.Compression, sequence uint64) error {
	f.cat.Insert(key, catalog.Item{
		Sequence: sequence,
		InRegion: false,
		Inflight: catalog.Inflight{Key: key, Value: value},
	})
	select {
	case f.queue <- queuedEntry{key: key, value: value, compression: compression, sequence: sequence}:
		return nil
	case <-f.stop:
		return fmt.Errorf("hybridstore/flusher: stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains any queued entries, seals the current region and waits for
// the background loop to exit.
func (f *Flusher) Stop(ctx context.Context) {
	close(f.stop)
	<-f.done
}

func (f *Flusher) run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case it := <-f.queue:
			f.write(ctx, it)
		case <-f.stop:
			f.drain(ctx)
			f.sealCurrent(ctx)
			return
		}
	}
}

// drain writes out whatever is already buffered in the channel without
// blocking for more, used during an orderly Stop.
func (f *Flusher) drain(ctx context.Context) {
	for {
		select {
		case it := <-f.queue:
			f.write(ctx, it)
		default:
			return
		}
	}
}

func (f *Flusher) write(ctx context.Context, it queuedEntry) {
	codec, err := compression.For(it.compression)
	if err != nil {
		slog.Error("hybridstore/flusher: unknown compression", "key", string(it.key), "error", err)
		return
	}
	value, err := codec.Compress(nil, it.value)
	if err != nil {
		slog.Error("hybridstore/flusher: compress entry", "key", string(it.key), "error", err)
		return
	}

	// spec §3/§4.6 step 2: each entry reserves align_up(align, header+value+key)
	// bytes, so entries pack as a sequence of aligned blocks rather than
	// back-to-back at arbitrary offsets.
	rawSize := entry.HeaderSize + len(value) + len(it.key)
	size := int(entry.AlignUp(uint64(f.align), uint64(rawSize)))
	for {
		if f.current == nil {
			r, err := f.rm.Acquire(ctx)
			if err != nil {
				slog.Error("hybridstore/flusher: acquire region", "error", err)
				return
			}
			f.current = r
		}

		res := f.current.Allocate(size, f.align)
		switch res.Outcome {
		case region.AllocateOk:
			h := entry.NewHeader(uint32(len(it.key)), uint32(len(value)), it.sequence, it.compression, value, it.key)
			buf := res.Slice.Bytes
			h.Write(buf[:entry.HeaderSize])
			copy(buf[entry.HeaderSize:], value)
			copy(buf[entry.HeaderSize+len(value):], it.key)
			for i := rawSize; i < len(buf); i++ {
				buf[i] = 0
			}
			view := res.Slice.View()
			res.Slice.Release()

			f.cat.Insert(it.key, catalog.Item{Sequence: it.sequence, InRegion: true, Region: view})
			f.metrics.Add(metrics.OpBytesInsert, int64(size))
			f.metrics.Add(metrics.TotalBytes, int64(size))
			return

		case region.AllocateFull:
			for i := range res.Tail {
				res.Tail[i] = 0
			}
			f.sealCurrent(ctx)
			f.current = nil
			// loop: acquire a fresh region and retry the same entry

		case region.AllocateNone:
			// The region lost its buffer out from under us (sealed by a
			// concurrent caller); treat it the same as full and retry fresh.
			f.current = nil
		}
	}
}

// sealCurrent takes the current region exclusive (no writers, no physical
// readers; buffered readers may still be draining the old buffer), writes
// its buffer out to the device and marks it sealed for eviction ordering.
func (f *Flusher) sealCurrent(ctx context.Context) {
	if f.current == nil {
		return
	}
	r := f.current
	release, err := r.Exclusive(ctx, false, true, false)
	if err != nil {
		slog.Error("hybridstore/flusher: seal region", "region", r.ID(), "error", err)
		return
	}
	buf, writtenLen := r.DetachBuffer()
	release()

	aligned := entry.AlignUp(uint64(f.align), uint64(writtenLen))
	if _, err := f.device.Write(ctx, buf[:aligned], r.ID(), 0); err != nil {
		slog.Error("hybridstore/flusher: write sealed region", "region", r.ID(), "error", err)
		return
	}
	f.rm.MarkSealed(r.ID())
}
