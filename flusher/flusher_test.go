package flusher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedcode/hybridstore/catalog"
	"github.com/sharedcode/hybridstore/device"
	"github.com/sharedcode/hybridstore/entry"
	"github.com/sharedcode/hybridstore/eviction"
	"github.com/sharedcode/hybridstore/metrics"
	"github.com/sharedcode/hybridstore/regionmanager"
)

func newFlusher(t *testing.T, regions, regionSize, align int) (*Flusher, *catalog.Catalog, *regionmanager.RegionManager) {
	t.Helper()
	d, err := device.NewMemory(device.Config{Regions: regions, RegionSize: regionSize, Align: align, IOSize: align})
	require.NoError(t, err)
	rm := regionmanager.New(d, eviction.NewFIFO())
	ids := make([]int, regions)
	for i := range ids {
		ids[i] = i
	}
	rm.SeedClean(ids...)
	cat := catalog.New(2)
	f := New(rm, cat, metrics.NewSink(), 16)
	f.Start(context.Background())
	return f, cat, rm
}

func TestEnqueueMakesEntryVisibleImmediately(t *testing.T) {
	f, cat, _ := newFlusher(t, 2, 512, 64)
	defer f.Stop(context.Background())

	require.NoError(t, f.Enqueue(context.Background(), []byte("k"), []byte("v"), entry.CompressionNone, 1))

	item, ok := cat.Lookup([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, uint64(1), item.Sequence)
}

func TestEnqueueEventuallyMigratesToRegion(t *testing.T) {
	f, cat, _ := newFlusher(t, 2, 512, 64)
	defer f.Stop(context.Background())

	require.NoError(t, f.Enqueue(context.Background(), []byte("k"), []byte("v"), entry.CompressionNone, 1))

	require.Eventually(t, func() bool {
		item, ok := cat.Lookup([]byte("k"))
		return ok && item.InRegion
	}, time.Second, time.Millisecond)
}

func TestStopSealsCurrentRegion(t *testing.T) {
	f, _, rm := newFlusher(t, 2, 512, 64)
	require.NoError(t, f.Enqueue(context.Background(), []byte("k"), []byte("v"), entry.CompressionNone, 1))
	f.Stop(context.Background())

	_, ok := rm.PeekVictim()
	assert.True(t, ok)
}

func TestAllocateFullRollsToNextRegion(t *testing.T) {
	// Small region so a handful of entries force a seal-and-roll; plenty of
	// spare clean regions so rolling never blocks waiting on the reclaimer
	// (not exercised by this test).
	f, cat, _ := newFlusher(t, 8, 256, 64)
	defer f.Stop(context.Background())

	for i := 0; i < 10; i++ {
		key := []byte{byte(i)}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := f.Enqueue(ctx, key, []byte("some value bytes"), entry.CompressionNone, uint64(i+1))
		cancel()
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		for i := 0; i < 10; i++ {
			item, ok := cat.Lookup([]byte{byte(i)})
			if !ok || !item.InRegion {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}
