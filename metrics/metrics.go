// Package metrics implements the best-effort, non-blocking counters and
// timers named in spec §6: op_duration_lookup_{hit,miss},
// op_bytes_{insert,lookup,reinsert}, insert_entry_bytes,
// op_duration_insert_{inserted,filtered,dropped}, total_bytes.
//
// The pack's only metrics stack (github.com/prometheus/client_golang) shows
// up solely as an indirect dependency dragged in by libp2p in
// nmxmxh-inos_v1's go.mod, pulled in for a scrape-server exposition format
// that nothing in this module offers. A Sink here is an in-process counter
// bag consulted by policies and the store facade, not a /metrics endpoint,
// so plain atomically-updated counters are used instead of pulling in the
// prometheus client for a surface it was never meant to cover.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Name identifies a counter or histogram in a Sink.
type Name string

const (
	OpDurationLookupHit      Name = "op_duration_lookup_hit"
	OpDurationLookupMiss     Name = "op_duration_lookup_miss"
	OpBytesInsert            Name = "op_bytes_insert"
	OpBytesLookup            Name = "op_bytes_lookup"
	OpBytesReinsert          Name = "op_bytes_reinsert"
	InsertEntryBytes         Name = "insert_entry_bytes"
	OpDurationInsertInserted Name = "op_duration_insert_inserted"
	OpDurationInsertFiltered Name = "op_duration_insert_filtered"
	OpDurationInsertDropped  Name = "op_duration_insert_dropped"
	TotalBytes               Name = "total_bytes"
)

// counter is a monotonic, concurrency-safe accumulator. Histograms are
// represented the same way (summed nanoseconds plus a sample count), since
// nothing in this module exports a distribution, only sums consulted by the
// rated-ticket reinsertion policy.
type counter struct {
	sum   atomic.Int64
	count atomic.Int64
}

// Sink is a registry of named counters, safe for concurrent use by the
// store, flusher, reclaimer and policies. Use NewSink to construct one.
type Sink struct {
	mu       sync.Mutex
	counters map[Name]*counter
}

func (s *Sink) get(name Name) *counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[name]
	if !ok {
		c = &counter{}
		s.counters[name] = c
	}
	return c
}

// NewSink allocates a ready-to-use Sink.
func NewSink() *Sink {
	return &Sink{counters: make(map[Name]*counter)}
}

// Add increments a byte/occurrence counter by delta. A nil Sink is a no-op,
// so callers that run without metrics configured (tests, recovery dry runs)
// need no nil check.
func (s *Sink) Add(name Name, delta int64) {
	if s == nil {
		return
	}
	c := s.get(name)
	c.sum.Add(delta)
	c.count.Add(1)
}

// Observe records a duration sample (nanoseconds) against a timing counter.
func (s *Sink) Observe(name Name, nanos int64) {
	s.Add(name, nanos)
}

// Get returns the running sum and sample count for name.
func (s *Sink) Get(name Name) (sum int64, count int64) {
	if s == nil {
		return 0, 0
	}
	c := s.get(name)
	return c.sum.Load(), c.count.Load()
}
