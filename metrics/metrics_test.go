package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinkAddAccumulates(t *testing.T) {
	s := NewSink()
	s.Add(OpBytesInsert, 10)
	s.Add(OpBytesInsert, 5)
	sum, count := s.Get(OpBytesInsert)
	assert.Equal(t, int64(15), sum)
	assert.Equal(t, int64(2), count)
}

func TestSinkObserveIsAdd(t *testing.T) {
	s := NewSink()
	s.Observe(OpDurationLookupHit, 1000)
	sum, count := s.Get(OpDurationLookupHit)
	assert.Equal(t, int64(1000), sum)
	assert.Equal(t, int64(1), count)
}

func TestSinkConcurrentAdd(t *testing.T) {
	s := NewSink()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(TotalBytes, 1)
		}()
	}
	wg.Wait()
	sum, count := s.Get(TotalBytes)
	assert.Equal(t, int64(100), sum)
	assert.Equal(t, int64(100), count)
}

func TestNilSinkIsNoop(t *testing.T) {
	var s *Sink
	assert.NotPanics(t, func() { s.Add(OpBytesLookup, 1) })
	sum, count := s.Get(OpBytesLookup)
	assert.Zero(t, sum)
	assert.Zero(t, count)
}
