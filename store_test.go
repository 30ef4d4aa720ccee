package hybridstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedcode/hybridstore/device"
	"github.com/sharedcode/hybridstore/entry"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	cfg := defaultConfig()
	cfg.Device = device.Config{Regions: 4, RegionSize: 512, Align: 64, IOSize: 64}
	cfg.ReclaimPollInterval = 5 * time.Millisecond
	for _, opt := range opts {
		opt(&cfg)
	}
	d, err := device.NewMemory(cfg.Device)
	require.NoError(t, err)

	s, err := openStore(context.Background(), d, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestWriteThenLookupRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := s.Writer([]byte("greeting"), 5)
	admitted, err := w.Finish(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.True(t, admitted)

	res, ok, err := s.Lookup(ctx, []byte("greeting"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), res.Value)
}

func TestLookupMissForUnknownKey(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Lookup(context.Background(), []byte("nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecondWriteSupersedesFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w1 := s.Writer([]byte("k"), 1)
	_, err := w1.Finish(ctx, []byte("v1"))
	require.NoError(t, err)

	w2 := s.Writer([]byte("k"), 1)
	_, err = w2.Finish(ctx, []byte("v2"))
	require.NoError(t, err)

	res, ok, err := s.Lookup(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(res.Value))
}

func TestRemoveDropsEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := s.Writer([]byte("k"), 1)
	_, err := w.Finish(ctx, []byte("v"))
	require.NoError(t, err)

	assert.True(t, s.Remove([]byte("k")))
	_, ok, err := s.Lookup(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupSurvivesAfterEntryMigratesToRegion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w := s.Writer([]byte("k"), 1)
	_, err := w.Finish(ctx, []byte("durable-value"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		item, ok := s.cat.Lookup([]byte("k"))
		return ok && item.InRegion
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		res, ok, err := s.Lookup(ctx, []byte("k"))
		return err == nil && ok && string(res.Value) == "durable-value"
	}, time.Second, time.Millisecond)
}

func TestMultipleFlusherLanesStillRoundTrip(t *testing.T) {
	// 3 lanes each need their own active region plus headroom to roll into
	// (Invariant 2: regions >= 2*Flushers), so bump past the default 4.
	s := openTestStore(t, WithFlushers(3), WithDevice(device.Config{Regions: 6, RegionSize: 512, Align: 64, IOSize: 64}))
	ctx := context.Background()

	keys := []string{"a", "b", "c", "d", "e"}
	for _, k := range keys {
		w := s.Writer([]byte(k), 1)
		_, err := w.Finish(ctx, []byte("value-"+k))
		require.NoError(t, err)
	}
	for _, k := range keys {
		res, ok, err := s.Lookup(ctx, []byte(k))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "value-"+k, string(res.Value))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
}

func TestOpenRejectsZeroRegions(t *testing.T) {
	_, err := Open(context.Background(), WithDevice(device.Config{Regions: 0}))
	assert.Error(t, err)
}

func TestOpenRejectsTooFewRegionsForFlusherCount(t *testing.T) {
	_, err := Open(context.Background(),
		WithDevice(device.Config{Regions: 2, RegionSize: 512, Align: 64, IOSize: 64}),
		WithFlushers(2),
	)
	assert.Error(t, err)
}

func TestOpenRejectsCleanRegionThresholdBelowReclaimers(t *testing.T) {
	_, err := Open(context.Background(),
		WithDevice(device.Config{Regions: 8, RegionSize: 512, Align: 64, IOSize: 64}),
		WithReclaimers(3),
		WithCleanRegionThreshold(2),
	)
	assert.Error(t, err)
}

func TestInflightLookupDecompressesValue(t *testing.T) {
	s := openTestStore(t, WithDefaultCompression(entry.CompressionZstd))
	ctx := context.Background()

	w := s.Writer([]byte("k"), 1)
	_, err := w.Finish(ctx, []byte("hello compressed world"))
	require.NoError(t, err)

	// Read back immediately, before the flusher has had a chance to persist
	// it: the catalog's Inflight item must still hold the plain value, not
	// whatever the flusher will eventually compress it into.
	res, ok, err := s.Lookup(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello compressed world", string(res.Value))
}

func TestCompressedValueSurvivesMigrationToRegion(t *testing.T) {
	s := openTestStore(t, WithDefaultCompression(entry.CompressionZstd))
	ctx := context.Background()

	w := s.Writer([]byte("k"), 1)
	_, err := w.Finish(ctx, []byte("hello compressed world"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		item, ok := s.cat.Lookup([]byte("k"))
		return ok && item.InRegion
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		res, ok, err := s.Lookup(ctx, []byte("k"))
		return err == nil && ok && string(res.Value) == "hello compressed world"
	}, time.Second, time.Millisecond)
}
