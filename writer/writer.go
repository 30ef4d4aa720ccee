// Package writer implements the per-insert builder spec §4.4/§4.6 describe:
// a caller asks the store for a Writer bound to a key and weight, may tune
// its compression/force/sequence before committing, and calls Finish with
// the value bytes to admit it. Exactly one of the admission policy's
// on_insert/on_drop obligations is delivered per Writer, whether Finish
// admits, rejects, or is never called at all.
package writer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sharedcode/hybridstore/entry"
	"github.com/sharedcode/hybridstore/metrics"
	"github.com/sharedcode/hybridstore/policy"
)

// Enqueuer is the flusher-facing sink a Writer hands admitted entries to.
// It is satisfied by *flusher.Flusher.
type Enqueuer interface {
	Enqueue(ctx context.Context, key, value []byte, compression entry.Compression, sequence uint64) error
}

// Writer is a single-use, not-safe-for-concurrent-use insert builder.
type Writer struct {
	key    []byte
	weight int

	compression entry.Compression
	force       bool
	judgeMask   uint64
	sequence    uint64

	judged *bool

	admission policy.Policy
	enqueuer  Enqueuer
	metrics   *metrics.Sink

	delivered bool
}

// New builds a Writer for key/weight. admission may be nil (treated as
// policy.AlwaysAdmit).
func New(key []byte, weight int, admission policy.Policy, enqueuer Enqueuer, sink *metrics.Sink) *Writer {
	if admission == nil {
		admission = policy.AlwaysAdmit{}
	}
	w := &Writer{
		key:       append([]byte(nil), key...),
		weight:    weight,
		admission: admission,
		enqueuer:  enqueuer,
		metrics:   sink,
	}
	runtime.SetFinalizer(w, finalize)
	return w
}

// finalize is a last-resort safety net, grounded on the finalizer-based
// close check in lmdb-go's Env type: if a Writer is garbage collected
// without either Finish or Discard ever running, it calls Discard, which
// would otherwise leave the "exactly one obligation" invariant unmet.
func finalize(w *Writer) {
	if !w.delivered {
		w.Discard()
	}
}

func (w *Writer) Key() []byte                        { return w.key }
func (w *Writer) Weight() int                         { return w.weight }
func (w *Writer) Compression() entry.Compression      { return w.compression }
func (w *Writer) SetCompression(c entry.Compression)  { w.compression = c }
func (w *Writer) Force() bool                         { return w.force }
func (w *Writer) SetForce(force bool)                 { w.force = force }
func (w *Writer) SetJudgeMask(mask uint64)            { w.judgeMask = mask }
func (w *Writer) JudgeMask() uint64                   { return w.judgeMask }
func (w *Writer) SetSequence(seq uint64)              { w.sequence = seq }
func (w *Writer) Sequence() uint64                    { return w.sequence }

// Judge consults the admission policy exactly once and memoises the
// result; subsequent calls (including the one Finish makes internally)
// return the cached verdict instead of re-probing rate limiters and the
// like.
func (w *Writer) Judge() bool {
	if w.judged == nil {
		v := w.admission.Judge(w.key, w.weight)
		w.judged = &v
	}
	return *w.judged
}

// Finish admits value if Judge (or Force) allows it and enqueues it to the
// flusher with Compression attached as a tag. Compression itself happens in
// the flusher, not here (spec §4.6 step 1): the catalog's Inflight item
// holds the raw value, since an inflight Lookup returns it verbatim without
// decompressing. Finish delivers the admission policy's on_insert/on_drop
// obligation and returns whether the entry was admitted. Finish must be
// called at most once per Writer.
func (w *Writer) Finish(ctx context.Context, value []byte) (bool, error) {
	if w.delivered {
		return false, fmt.Errorf("hybridstore/writer: Finish called on an already-resolved writer for key %q", w.key)
	}
	start := time.Now()
	judged := w.Judge()
	if !judged && !w.force {
		w.deliverDrop(judged)
		w.metrics.Observe(metrics.OpDurationInsertFiltered, time.Since(start).Nanoseconds())
		return false, nil
	}

	if err := w.enqueuer.Enqueue(ctx, w.key, value, w.compression, w.sequence); err != nil {
		w.deliverDrop(judged)
		w.metrics.Observe(metrics.OpDurationInsertDropped, time.Since(start).Nanoseconds())
		return false, err
	}

	w.delivered = true
	w.admission.OnInsert(w.key, w.weight, judged)
	w.metrics.Observe(metrics.OpDurationInsertInserted, time.Since(start).Nanoseconds())
	w.metrics.Add(metrics.InsertEntryBytes, int64(len(value)))
	runtime.SetFinalizer(w, nil)
	return true, nil
}

// Discard abandons the writer without admitting anything, delivering
// on_drop if it has not already been delivered. Callers that decide not to
// call Finish after all must call Discard explicitly; it is also the
// finalizer's fallback.
func (w *Writer) Discard() {
	if w.delivered {
		return
	}
	judged := false
	if w.judged != nil {
		judged = *w.judged
	}
	w.deliverDrop(judged)
}

func (w *Writer) deliverDrop(judged bool) {
	if w.delivered {
		return
	}
	w.delivered = true
	w.admission.OnDrop(w.key, w.weight, judged)
	runtime.SetFinalizer(w, nil)
}
