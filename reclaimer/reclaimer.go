// Package reclaimer implements the background loop that keeps the clean
// region pool above a target threshold by taking the eviction policy's next
// victim exclusively, bumping its version, running the reinsertion policy
// over every entry still catalogued against it, and handing the region back
// to the pool (spec §4.7 "reclaiming"). A dropped entry is simply left out
// of the catalog; TakeRegion has already removed it.
//
// Every reinserted entry is given a new sequence rather than keeping its
// old one: the tie-break rule in catalog.Insert means a stale sequence
// could lose a race against a write that landed after the original insert
// but before reclaim ran, silently dropping a value that should have
// survived. Minting a fresh sequence at reinsertion time is the one
// resolution consistent with "latest admission wins".
package reclaimer

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharedcode/hybridstore/catalog"
	"github.com/sharedcode/hybridstore/compression"
	"github.com/sharedcode/hybridstore/entry"
	"github.com/sharedcode/hybridstore/metrics"
	"github.com/sharedcode/hybridstore/policy"
	"github.com/sharedcode/hybridstore/regionmanager"
)

// Enqueuer is the flusher-facing sink reclaimed entries are resubmitted
// through. It is satisfied by *flusher.Flusher.
type Enqueuer interface {
	Enqueue(ctx context.Context, key, value []byte, compression entry.Compression, sequence uint64) error
}

// Reclaimer drives the reclaim loop.
type Reclaimer struct {
	rm          *regionmanager.RegionManager
	cat         *catalog.Catalog
	reinsertion policy.Policy
	enqueuer    Enqueuer
	nextSeq     func() uint64
	metrics     *metrics.Sink

	threshold    int
	pollInterval time.Duration

	stop chan struct{}
	done chan struct{}
}

// New builds a Reclaimer that tries to keep at least threshold regions
// clean, checking every pollInterval. reinsertion may be nil (treated as
// policy.AlwaysReinsert).
func New(rm *regionmanager.RegionManager, cat *catalog.Catalog, reinsertion policy.Policy, enqueuer Enqueuer, nextSeq func() uint64, sink *metrics.Sink, threshold int, pollInterval time.Duration) *Reclaimer {
	if reinsertion == nil {
		reinsertion = policy.AlwaysReinsert{}
	}
	return &Reclaimer{
		rm:           rm,
		cat:          cat,
		reinsertion:  reinsertion,
		enqueuer:     enqueuer,
		nextSeq:      nextSeq,
		metrics:      sink,
		threshold:    threshold,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the background loop.
func (rc *Reclaimer) Start(ctx context.Context) {
	go rc.run(ctx)
}

// Stop signals the loop to exit and waits for it to do so.
func (rc *Reclaimer) Stop() {
	close(rc.stop)
	<-rc.done
}

func (rc *Reclaimer) run(ctx context.Context) {
	defer close(rc.done)
	ticker := time.NewTicker(rc.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rc.stop:
			return
		case <-ticker.C:
			rc.reclaimUntilThreshold(ctx)
		}
	}
}

func (rc *Reclaimer) reclaimUntilThreshold(ctx context.Context) {
	for rc.rm.CleanCount() < rc.threshold {
		id, ok := rc.rm.PeekVictim()
		if !ok {
			return
		}
		if err := rc.reclaimOne(ctx, id); err != nil {
			slog.Error("hybridstore/reclaimer: reclaim region", "region", id, "error", err)
			return
		}
	}
}

func (rc *Reclaimer) reclaimOne(ctx context.Context, id int) error {
	region := rc.rm.Region(id)

	release, err := region.Exclusive(ctx, false, false, false)
	if err != nil {
		return err
	}

	region.Reclaim()
	items := rc.cat.TakeRegion(id)
	for _, ki := range items {
		rc.reinsert(ctx, region, ki)
	}

	release()
	rc.rm.Reclaimed(id)
	rc.rm.SeedClean(id)
	return nil
}

func (rc *Reclaimer) reinsert(ctx context.Context, region interface {
	ReadRaw(ctx context.Context, offset, length int64) ([]byte, error)
}, ki catalog.KeyedItem) {
	raw, err := region.ReadRaw(ctx, ki.Item.Region.Offset, ki.Item.Region.Len)
	if err != nil {
		slog.Error("hybridstore/reclaimer: read entry", "error", err)
		return
	}
	if len(raw) < entry.HeaderSize {
		return
	}
	h := entry.ReadHeader(raw[:entry.HeaderSize])
	if !h.ValidMagic() {
		slog.Warn("hybridstore/reclaimer: entry magic mismatch during reclaim, dropping")
		return
	}
	// spec §3/§4.9: body is laid out value-first, then key.
	valueEnd := entry.HeaderSize + int(h.ValueLen)
	keyEnd := valueEnd + int(h.KeyLen)
	if keyEnd > len(raw) {
		slog.Warn("hybridstore/reclaimer: entry length overruns region, dropping")
		return
	}
	compressedValue := raw[entry.HeaderSize:valueEnd]
	key := raw[valueEnd:keyEnd]
	if entry.Checksum(compressedValue, key) != h.Checksum {
		slog.Warn("hybridstore/reclaimer: checksum mismatch during reclaim, dropping")
		return
	}

	weight := int(h.ValueLen)
	judged := rc.reinsertion.Judge(key, weight)
	if !judged {
		rc.reinsertion.OnDrop(key, weight, judged)
		return
	}

	// The Enqueuer (flusher) expects a raw value plus a compression tag and
	// compresses it itself (spec §4.6 step 1); the on-disk bytes here are
	// already compressed, so decompress before resubmitting or the value
	// would be compressed twice.
	codec, err := compression.For(h.Compression())
	if err != nil {
		slog.Error("hybridstore/reclaimer: unknown compression during reclaim", "error", err)
		rc.reinsertion.OnDrop(key, weight, judged)
		return
	}
	value, err := codec.Decompress(nil, compressedValue)
	if err != nil {
		slog.Error("hybridstore/reclaimer: decompress entry during reclaim", "error", err)
		rc.reinsertion.OnDrop(key, weight, judged)
		return
	}

	seq := rc.nextSeq()
	keyCopy := append([]byte(nil), key...)
	valueCopy := append([]byte(nil), value...)
	if err := rc.enqueuer.Enqueue(ctx, keyCopy, valueCopy, h.Compression(), seq); err != nil {
		slog.Error("hybridstore/reclaimer: reinsert", "error", err)
		rc.reinsertion.OnDrop(key, weight, judged)
		return
	}
	rc.reinsertion.OnInsert(key, weight, judged)
	rc.metrics.Add(metrics.OpBytesReinsert, int64(weight))
}
