// Package recovery implements the crash-recovery scan (spec §4.8): walk
// every region's entry chain from the header block forward, reinstating
// the catalog from whatever checksums validate, stopping a region's scan
// at the first entry that doesn't (a torn write at the crash point),
// folding the rest of that region in as garbage to be reclaimed later.
// Regions whose header never validated are clean and handed straight back
// to the pool.
//
// Scanning runs one goroutine per region bounded by a weighted semaphore,
// the same errgroup-plus-semaphore shape the teacher already depends on
// (golang.org/x/sync), generalizing the concurrency cap the teacher's
// TaskRunner enforces with a buffered channel into x/sync/semaphore's
// weighted form since recovery wants a context-aware Acquire rather than a
// bare channel send.
package recovery

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sharedcode/hybridstore/catalog"
	"github.com/sharedcode/hybridstore/entry"
	"github.com/sharedcode/hybridstore/region"
	"github.com/sharedcode/hybridstore/regionmanager"
)

// Result summarizes a completed recovery pass.
type Result struct {
	// MaxSequence is the highest entry sequence observed across every
	// region, used to seed the store's sequence counter so newly admitted
	// entries never collide with a recovered one.
	MaxSequence uint64
	// Regions is the count of regions scanned.
	Regions int
	// SealedRegions is how many held at least one valid entry.
	SealedRegions int
}

// Run scans every region in rm, repopulating cat, and returns the highest
// sequence seen. concurrency bounds how many regions are scanned at once.
func Run(ctx context.Context, rm *regionmanager.RegionManager, cat *catalog.Catalog, concurrency int64) (Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(concurrency)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var maxSeq uint64
	var cleanIDs, sealedIDs []region.ID

	for i := 0; i < rm.Count(); i++ {
		id := i
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			seq, hasData, err := scanRegion(gctx, rm, cat, id)
			if err != nil {
				return err
			}
			mu.Lock()
			if seq > maxSeq {
				maxSeq = seq
			}
			if hasData {
				sealedIDs = append(sealedIDs, id)
			} else {
				cleanIDs = append(cleanIDs, id)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	for _, id := range sealedIDs {
		rm.MarkSealed(id)
	}
	rm.Flash(cleanIDs)

	return Result{MaxSequence: maxSeq, Regions: rm.Count(), SealedRegions: len(sealedIDs)}, nil
}

func scanRegion(ctx context.Context, rm *regionmanager.RegionManager, cat *catalog.Catalog, id region.ID) (maxSeq uint64, hasData bool, err error) {
	r := rm.Region(id)
	dev := rm.Device()
	align := int64(dev.Align())
	regionSize := int64(dev.RegionSize())

	headerBuf, err := r.ReadRaw(ctx, 0, align)
	if err != nil {
		return 0, false, err
	}
	if !entry.ReadRegionHeader(headerBuf).Valid() {
		return 0, false, nil
	}

	offset := align
	for offset+int64(entry.HeaderSize) <= regionSize {
		hbuf, err := r.ReadRaw(ctx, offset, int64(entry.HeaderSize))
		if err != nil {
			return maxSeq, hasData, err
		}
		h := entry.ReadHeader(hbuf)
		if !h.ValidMagic() {
			break
		}
		// spec §3/§4.9: the body is laid out value-first, then key — the
		// key span is [header+value_len, header+value_len+key_len).
		entryStart := offset + int64(entry.HeaderSize)
		valueEnd := entryStart + int64(h.ValueLen)
		keyEnd := valueEnd + int64(h.KeyLen)
		if keyEnd > regionSize {
			slog.Warn("hybridstore/recovery: truncated entry, stopping region scan", "region", id, "offset", offset)
			break
		}

		vk, err := r.ReadRaw(ctx, entryStart, keyEnd-entryStart)
		if err != nil {
			return maxSeq, hasData, err
		}
		value := vk[:h.ValueLen]
		key := vk[h.ValueLen:]
		if entry.Checksum(value, key) != h.Checksum {
			slog.Warn("hybridstore/recovery: checksum mismatch, stopping region scan", "region", id, "offset", offset)
			break
		}

		// Each entry was reserved in align_up(align, header+value+key) bytes
		// (spec §4.6 step 2); advance by that aligned span, not the entry's
		// own unaligned length, or the next read lands on the zero-padded
		// gap and the scan stops early.
		entryLen := entry.AlignUp(uint64(align), uint64(keyEnd-offset))
		cat.Insert(append([]byte(nil), key...), catalog.Item{
			Sequence: h.Sequence,
			InRegion: true,
			Region:   region.View{RegionID: id, Offset: offset, Len: int64(entryLen), Version: r.Version()},
		})
		if h.Sequence > maxSeq {
			maxSeq = h.Sequence
		}
		hasData = true
		offset += int64(entryLen)
	}
	return maxSeq, hasData, nil
}
